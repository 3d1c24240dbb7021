package pipeline

import (
	"context"
	"log/slog"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/confirm"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/router"
	"Jarvis-Orchestrator/pkg/logger"
)

// Status 是一次处理的最终状态。
type Status string

const (
	StatusNoPlan               Status = "no_plan"
	StatusExecuted             Status = "executed"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusConfirmed            Status = "confirmed"
	StatusDenied               Status = "denied"
	StatusError                Status = "error"
	StatusDelegated            Status = "delegated"
)

// Result 汇总路由、确认与执行的结果。
type Result struct {
	Status       Status                      `json:"status"`
	Reason       string                      `json:"reason,omitempty"`
	Decision     *router.Decision            `json:"decision,omitempty"`
	Confirmation *router.ConfirmationRequest `json:"confirmation,omitempty"`
	Results      []execution.TaskResult      `json:"results,omitempty"`
	Outcome      *agent.Outcome              `json:"outcome,omitempty"`
}

// Resolver 处理需要确认的意图。
type Resolver interface {
	Resolve(ctx context.Context, in intent.Intent, cond intent.Conditions, p confirm.Prompter) confirm.Result
}

// Delegator 处理跨 Agent 委派。
type Delegator interface {
	Handle(ctx context.Context, in intent.Intent) agent.Outcome
}

// Pipeline 组合路由、执行、确认与委派。
type Pipeline struct {
	router      confirm.Router
	executor    confirm.PlanExecutor
	coordinator Resolver
	delegator   Delegator
	logger      *slog.Logger
}

// New 创建流水线。delegator 可以为 nil。
func New(r confirm.Router, executor confirm.PlanExecutor, coordinator Resolver, delegator Delegator) *Pipeline {
	return &Pipeline{
		router:      r,
		executor:    executor,
		coordinator: coordinator,
		delegator:   delegator,
		logger:      logger.Named("pipeline"),
	}
}

// Handle 路由意图并按决策执行。prompter 为 nil 时，需要确认的请求返回 awaiting_confirmation。
func (p *Pipeline) Handle(ctx context.Context, in intent.Intent, cond intent.Conditions, prompter confirm.Prompter) Result {
	d := p.router.Route(ctx, in, cond)
	if !d.NeedsConfirmation() {
		return p.fromDecision(ctx, d, cond)
	}
	if prompter == nil || p.coordinator == nil {
		return Result{Status: StatusAwaitingConfirmation, Decision: &d, Confirmation: d.Confirmation}
	}

	res := p.coordinator.Resolve(ctx, in, cond, prompter)
	p.logger.Debug("确认流程结束", slog.String("intent", in.Name), slog.String("status", string(res.Status)))
	switch res.Status {
	case confirm.StatusConfirmed:
		return Result{Status: StatusConfirmed, Results: res.Results}
	case confirm.StatusDenied:
		return Result{Status: StatusDenied}
	case confirm.StatusNoConfirmationRequired:
		// 授权在两次路由之间生效。
		if res.Route != nil {
			return p.fromDecision(ctx, *res.Route, cond)
		}
		return Result{Status: StatusError}
	default:
		return Result{Status: StatusError, Reason: res.Reason, Decision: res.Route}
	}
}

func (p *Pipeline) fromDecision(ctx context.Context, d router.Decision, cond intent.Conditions) Result {
	switch d.Kind {
	case router.KindNoPlan:
		return Result{Status: StatusNoPlan, Reason: d.Reason, Decision: &d}
	case router.KindOK:
		results := p.executor.ExecutePlan(ctx, d.Tasks, cond)
		return Result{Status: StatusExecuted, Decision: &d, Results: results}
	default:
		return Result{Status: StatusAwaitingConfirmation, Decision: &d, Confirmation: d.Confirmation}
	}
}

// Delegate 通过跨 Agent 规划器处理意图。
func (p *Pipeline) Delegate(ctx context.Context, in intent.Intent) Result {
	if p.delegator == nil {
		out := agent.Fail("no_registry")
		return Result{Status: StatusError, Reason: out.Message, Outcome: &out}
	}
	out := p.delegator.Handle(ctx, in)
	if !out.OK {
		return Result{Status: StatusError, Reason: out.Message, Outcome: &out}
	}
	return Result{Status: StatusDelegated, Outcome: &out}
}

// Succeeded 报告结果中所有任务是否均成功。
func (r Result) Succeeded() bool {
	switch r.Status {
	case StatusExecuted, StatusConfirmed:
		for _, tr := range r.Results {
			if !tr.Success {
				return false
			}
		}
		return true
	case StatusDelegated:
		return true
	default:
		return false
	}
}
