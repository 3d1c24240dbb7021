package dispatch

import (
	stdErrors "errors"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/router"
)

// Mode 决定请求走规划流水线还是跨 Agent 委派。
type Mode string

const (
	ModePlan     Mode = "plan"
	ModeDelegate Mode = "delegate"
)

// Status 表示异步请求在生命周期中的状态。
type Status string

const (
	StatusPending              Status = "pending"
	StatusRunning              Status = "running"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusSucceeded            Status = "succeeded"
	StatusDenied               Status = "denied"
	StatusNoPlan               Status = "no_plan"
	StatusFailed               Status = "failed"
)

// Terminal 报告状态是否为终态。
func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusDenied, StatusNoPlan, StatusFailed:
		return true
	default:
		return false
	}
}

// ConfirmationAnswer 是调用方对待确认请求给出的回答。
type ConfirmationAnswer struct {
	Approve       bool `json:"approve"`
	RememberHours int  `json:"remember_hours"`
}

// Request 描述一次排队处理的意图。
type Request struct {
	ID           string                 `json:"id"`
	Mode         Mode                   `json:"mode"`
	Intent       intent.Intent          `json:"intent"`
	Conditions   intent.Conditions      `json:"conditions"`
	Status       Status                 `json:"status"`
	Decision     *router.Decision       `json:"decision,omitempty"`
	Reason       string                 `json:"reason,omitempty"`
	Results      []execution.TaskResult `json:"results,omitempty"`
	Outcome      *agent.Outcome         `json:"outcome,omitempty"`
	Confirmation *ConfirmationAnswer    `json:"confirmation,omitempty"`
	Error        string                 `json:"error,omitempty"`
	ErrorCode    string                 `json:"error_code,omitempty"`
	CreatedAt    int64                  `json:"created_at"`
	UpdatedAt    int64                  `json:"updated_at"`
}

// Completion 是处理器写回存储的一次处理结果。
type Completion struct {
	Status    Status
	Reason    string
	Decision  *router.Decision
	Results   []execution.TaskResult
	Outcome   *agent.Outcome
	Error     string
	ErrorCode string
}

const (
	CodeRequestNotFound   xerrors.Code = "REQUEST_NOT_FOUND"
	CodeRequestConflict   xerrors.Code = "REQUEST_CONFLICT"
	CodeRequestCompleted  xerrors.Code = "REQUEST_COMPLETED"
	CodeRequestValidation xerrors.Code = "REQUEST_VALIDATION_FAILED"
	CodeRequestPublish    xerrors.Code = "REQUEST_PUBLISH_FAILED"
)

var (
	// ErrRequestNotFound 表示指定的请求不存在。
	ErrRequestNotFound = xerrors.New(CodeRequestNotFound, "request not found")
	// ErrRequestConflict 表示请求在当前状态下无法进行所请求的操作。
	ErrRequestConflict = xerrors.New(CodeRequestConflict, "request conflict")
	// ErrRequestCompleted 表示请求已经处于终态。
	ErrRequestCompleted = xerrors.New(CodeRequestCompleted, "request already completed")
)

func init() {
	xerrors.Register(CodeRequestNotFound, xerrors.Attributes{
		Message:  "request not found",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRequestConflict, xerrors.Attributes{
		Message:  "request conflict",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeRequestCompleted, xerrors.Attributes{
		Message:  "request already completed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRequestValidation, xerrors.Attributes{
		Message:  "request validation failed",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeRequestPublish, xerrors.Attributes{
		Message:   "failed to publish request",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
	})
}

// IsNotFound 判断错误是否表示请求不存在。
func IsNotFound(err error) bool {
	return stdErrors.Is(err, ErrRequestNotFound)
}

// IsValidStatus 检查状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusPending, StatusRunning, StatusAwaitingConfirmation,
		StatusSucceeded, StatusDenied, StatusNoPlan, StatusFailed:
		return true
	default:
		return false
	}
}

func cloneRequest(req *Request) *Request {
	clone := *req
	clone.Intent.Entities = intent.CloneArgs(req.Intent.Entities)
	clone.Decision = cloneDecision(req.Decision)
	if req.Results != nil {
		clone.Results = make([]execution.TaskResult, len(req.Results))
		for i, r := range req.Results {
			r.Result = intent.CloneArgs(r.Result)
			clone.Results[i] = r
		}
	}
	if req.Outcome != nil {
		out := *req.Outcome
		out.Details = intent.CloneArgs(out.Details)
		clone.Outcome = &out
	}
	if req.Confirmation != nil {
		answer := *req.Confirmation
		clone.Confirmation = &answer
	}
	return &clone
}

func cloneDecision(d *router.Decision) *router.Decision {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Tasks != nil {
		clone.Tasks = make(intent.Plan, len(d.Tasks))
		for i, task := range d.Tasks {
			task.Args = intent.CloneArgs(task.Args)
			clone.Tasks[i] = task
		}
	}
	if d.Confirmation != nil {
		req := *d.Confirmation
		clone.Confirmation = &req
	}
	return &clone
}
