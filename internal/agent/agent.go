package agent

import (
	"context"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
)

// Provider 是所有能力提供方必须实现的最小契约。
// Execute 以显式 error 表示故障，调用方不需要恢复 panic。
type Provider interface {
	Name() string
	Execute(ctx context.Context, action string, args map[string]any) (map[string]any, error)
}

// Performer 表示提供方可以直接处理整条意图。
type Performer interface {
	Perform(ctx context.Context, in intent.Intent) Outcome
}

// PreconditionChecker 表示提供方在执行前需要检查前置条件。
type PreconditionChecker interface {
	CheckPrecondition(ctx context.Context, in intent.Intent) Precondition
}

// IntentMatcher 表示提供方可以声明自己能否处理某个意图。
type IntentMatcher interface {
	CanHandle(in intent.Intent) (bool, error)
}

// Prioritized 提供路由排序使用的优先级，缺省为 0。
type Prioritized interface {
	Priority() int
}

// RiskDeclarer 声明提供方的风险等级，缺省为 low。
type RiskDeclarer interface {
	Risk() intent.RiskTier
}

// Outcome 是 Perform 的结果。
type Outcome struct {
	OK      bool           `json:"ok"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// Fail 构造失败结果。
func Fail(message string) Outcome {
	return Outcome{OK: false, Message: message}
}

// Requirement 指定满足前置条件所需的辅助提供方和子意图。
type Requirement struct {
	Agent  string        `json:"agent"`
	Intent intent.Intent `json:"intent"`
}

// Precondition 是前置条件检查的结果。
type Precondition struct {
	OK       bool         `json:"ok"`
	Reason   string       `json:"reason,omitempty"`
	Requires *Requirement `json:"requires,omitempty"`
}

// Satisfied 是满足条件时的便捷值。
var Satisfied = Precondition{OK: true}

// RiskOf 返回提供方声明的风险等级。
func RiskOf(p Provider) intent.RiskTier {
	if d, ok := p.(RiskDeclarer); ok {
		return d.Risk().Normalize()
	}
	return intent.RiskLow
}

// PriorityOf 返回提供方声明的优先级。
func PriorityOf(p Provider) int {
	if d, ok := p.(Prioritized); ok {
		return d.Priority()
	}
	return 0
}

const (
	CodeUnknownAction xerrors.Code = "AGENT_UNKNOWN_ACTION"
	CodeDuplicate     xerrors.Code = "AGENT_DUPLICATE"
)

var (
	// ErrAgentNotFound 表示注册表中没有对应名称的提供方。
	ErrAgentNotFound = xerrors.New(xerrors.CodeAgentNotFound, "agent_not_found")
	// ErrUnknownAction 表示提供方不支持请求的动作。
	ErrUnknownAction = xerrors.New(CodeUnknownAction, "unknown_action")
)

func init() {
	xerrors.Register(CodeUnknownAction, xerrors.Attributes{
		Message:  "unknown_action",
		Severity: xerrors.SeverityInfo,
	})
	xerrors.Register(CodeDuplicate, xerrors.Attributes{
		Message:  "agent already registered",
		Severity: xerrors.SeverityWarning,
	})
}

// UnknownAction 返回携带动作名的 ErrUnknownAction。
func UnknownAction(action string) error {
	return xerrors.Wrap(CodeUnknownAction, nil, "unknown_action", xerrors.WithMetadata("action", action))
}
