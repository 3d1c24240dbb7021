package confirm

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/internal/router"
	"Jarvis-Orchestrator/pkg/logger"
)

// Status 是确认流程的结果状态。
type Status string

const (
	StatusConfirmed              Status = "confirmed"
	StatusDenied                 Status = "denied"
	StatusNoConfirmationRequired Status = "no_confirmation_required"
	StatusError                  Status = "error"

	ReasonInputFailed = "input_failed"

	rememberPrompt = "Auto-approve this action for how many hours? (0 for never): "
)

// Result 描述确认流程的结果。
type Result struct {
	Status  Status                 `json:"status"`
	Reason  string                 `json:"reason,omitempty"`
	Route   *router.Decision       `json:"route,omitempty"`
	Results []execution.TaskResult `json:"results,omitempty"`
}

// Router 产出路由决策。
type Router interface {
	Route(ctx context.Context, in intent.Intent, cond intent.Conditions) router.Decision
}

// PlanExecutor 顺序执行计划。
type PlanExecutor interface {
	ExecutePlan(ctx context.Context, plan intent.Plan, cond intent.Conditions) []execution.TaskResult
}

// Granter 记录一段时间内有效的授权。
type Granter interface {
	Grant(ctx context.Context, agent, action string, ttl time.Duration) (time.Time, error)
}

// Coordinator 串联路由、用户确认、授权记忆与执行。
type Coordinator struct {
	router   Router
	executor PlanExecutor
	granter  Granter
	logger   *slog.Logger
}

// NewCoordinator 创建协调器。granter 为 nil 时忽略“记住决定”的回答。
func NewCoordinator(r Router, executor PlanExecutor, granter Granter) *Coordinator {
	return &Coordinator{
		router:   r,
		executor: executor,
		granter:  granter,
		logger:   logger.Named("confirm"),
	}
}

// ConfirmPrompt 返回确认提示文本。
func ConfirmPrompt(name string) string {
	return fmt.Sprintf("Confirm action '%s'? (y/n): ", name)
}

// Resolve 处理需要确认的意图。被拒绝时不会执行任何任务，也不会写入事件。
func (c *Coordinator) Resolve(ctx context.Context, in intent.Intent, cond intent.Conditions, p Prompter) Result {
	res := c.resolve(ctx, in, cond, p)
	metrics.ObserveConfirmation(string(res.Status))
	if res.Status != StatusNoConfirmationRequired {
		logger.Audit().Info("confirmation resolved",
			slog.String("intent", in.Name),
			slog.String("status", string(res.Status)),
			slog.String("reason", res.Reason),
		)
	}
	return res
}

func (c *Coordinator) resolve(ctx context.Context, in intent.Intent, cond intent.Conditions, p Prompter) Result {
	first := c.router.Route(ctx, in, cond)
	if !first.NeedsConfirmation() {
		return Result{Status: StatusNoConfirmationRequired, Route: &first}
	}
	if p == nil {
		return Result{Status: StatusError, Reason: ReasonInputFailed}
	}

	reply, err := p.Prompt(ctx, ConfirmPrompt(in.Name))
	if err != nil {
		c.logger.Warn("读取确认输入失败", slog.String("intent", in.Name), slog.Any("error", err))
		return Result{Status: StatusError, Reason: ReasonInputFailed}
	}
	switch strings.ToLower(strings.TrimSpace(reply)) {
	case "y", "yes":
	default:
		return Result{Status: StatusDenied}
	}

	confirmed := cond.Confirmed()
	if hours := c.rememberHours(ctx, p); hours > 0 {
		c.remember(ctx, in, confirmed, hours)
	}

	second := c.router.Route(ctx, in, confirmed)
	if !second.OK() {
		return Result{Status: StatusError, Route: &second}
	}
	results := c.executor.ExecutePlan(ctx, second.Tasks, confirmed)
	return Result{Status: StatusConfirmed, Results: results}
}

func (c *Coordinator) rememberHours(ctx context.Context, p Prompter) int {
	answer, err := p.Prompt(ctx, rememberPrompt)
	if err != nil {
		return 0
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0
	}
	hours, err := strconv.Atoi(answer)
	if err != nil {
		return 0
	}
	if int64(hours) > approval.MaxHours {
		hours = int(approval.MaxHours)
	}
	return hours
}

// remember 只为确认后计划中的第一个任务授权。
func (c *Coordinator) remember(ctx context.Context, in intent.Intent, confirmed intent.Conditions, hours int) {
	if c.granter == nil {
		return
	}
	d := c.router.Route(ctx, in, confirmed)
	if !d.OK() || len(d.Tasks) == 0 {
		return
	}
	task := d.Tasks[0]
	ttl := time.Duration(hours) * time.Hour
	if _, err := c.granter.Grant(ctx, task.Agent, task.Action, ttl); err != nil {
		c.logger.Warn("记录授权失败",
			slog.String("agent", task.Agent),
			slog.String("action", task.Action),
			slog.Any("error", err))
	}
}
