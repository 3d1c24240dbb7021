package router

import (
	"context"
	"sort"
	"strings"

	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/observability/metrics"
)

// Kind 区分路由决策的类型。
type Kind string

const (
	KindNoPlan              Kind = "no_plan"
	KindRequireConfirmation Kind = "require_confirmation"
	KindOK                  Kind = "ok"
)

const (
	ReasonUnknownIntent = "unknown_intent"
	ReasonPlannerEmpty  = "planner_empty"

	// PreferenceBoost 是 PreferAgent 命中时追加的分数。
	PreferenceBoost = 5
)

// TaskPlanner 将意图转换为计划。
type TaskPlanner interface {
	Plan(in intent.Intent) intent.Plan
}

// PrioritySource 提供 agent 优先级。
type PrioritySource interface {
	Priority(name string) int
}

// ApprovalChecker 判断 agent:action 是否存在有效授权。
type ApprovalChecker interface {
	IsApproved(agent, action string) bool
}

// ConfirmationRequest 是需要用户确认时返回的信息。
type ConfirmationRequest struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Decision 是路由结果。
type Decision struct {
	Kind         Kind                 `json:"kind"`
	Reason       string               `json:"reason,omitempty"`
	Tasks        intent.Plan          `json:"tasks,omitempty"`
	Confirmation *ConfirmationRequest `json:"confirmation,omitempty"`
}

// OK 报告决策是否可直接执行。
func (d Decision) OK() bool { return d.Kind == KindOK }

// NeedsConfirmation 报告是否需要用户确认。
func (d Decision) NeedsConfirmation() bool { return d.Kind == KindRequireConfirmation }

// Router 组合规划器、优先级来源与授权检查。
type Router struct {
	planner   TaskPlanner
	registry  PrioritySource
	approvals ApprovalChecker
}

// New 创建路由器。approvals 为 nil 时视为没有任何授权。
func New(planner TaskPlanner, registry PrioritySource, approvals ApprovalChecker) *Router {
	return &Router{planner: planner, registry: registry, approvals: approvals}
}

// Route 计算意图的路由决策。
func (r *Router) Route(_ context.Context, in intent.Intent, cond intent.Conditions) Decision {
	d := r.route(in, cond)
	metrics.ObserveRouterDecision(string(d.Kind))
	return d
}

func (r *Router) route(in intent.Intent, cond intent.Conditions) Decision {
	if strings.TrimSpace(in.Name) == "" || in.Name == intent.Unknown {
		return Decision{Kind: KindNoPlan, Reason: ReasonUnknownIntent}
	}
	plan := r.planner.Plan(in)
	if len(plan) == 0 {
		return Decision{Kind: KindNoPlan, Reason: ReasonPlannerEmpty}
	}

	for _, task := range plan {
		if task.Risk.Normalize() != intent.RiskHigh || cond.UserConfirmed {
			continue
		}
		if r.approved(task.Agent, task.Action) {
			continue
		}
		return Decision{
			Kind:         KindRequireConfirmation,
			Confirmation: &ConfirmationRequest{Intent: in.Name, Confidence: in.Confidence},
		}
	}

	type scored struct {
		task  intent.Task
		score int
	}
	ranked := make([]scored, 0, len(plan))
	for _, task := range plan {
		ranked = append(ranked, scored{task: task, score: r.score(task.Agent, cond.PreferAgent)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	out := make(intent.Plan, 0, len(ranked))
	for _, s := range ranked {
		out = append(out, s.task)
	}
	return Decision{Kind: KindOK, Tasks: out}
}

func (r *Router) approved(agent, action string) bool {
	if r.approvals == nil {
		return false
	}
	return r.approvals.IsApproved(agent, action) || r.approvals.IsApproved(agent, "*")
}

func (r *Router) score(agent, prefer string) int {
	score := 0
	if r.registry != nil {
		score = r.registry.Priority(agent)
	}
	if prefer != "" && agent == prefer {
		score += PreferenceBoost
	}
	return score
}
