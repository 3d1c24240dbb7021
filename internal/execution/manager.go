package execution

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"Jarvis-Orchestrator/internal/agent"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/internal/policy"
	"Jarvis-Orchestrator/pkg/logger"
)

const (
	EventTaskStart  = "task.start"
	EventTaskPolicy = "task.policy"
	EventTaskEnd    = "task.end"

	ErrorPolicyDenied = "policy_denied"

	tracerName = "Jarvis-Orchestrator/internal/execution"
)

// TaskResult 是单个任务的执行结果。
type TaskResult struct {
	Success bool           `json:"success"`
	Result  map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
	Reason  string         `json:"reason,omitempty"`
}

func (r TaskResult) payload() map[string]any {
	out := map[string]any{"success": r.Success}
	if r.Result != nil {
		out["result"] = r.Result
	}
	if r.Error != "" {
		out["error"] = r.Error
	}
	if r.Reason != "" {
		out["reason"] = r.Reason
	}
	return out
}

func outcomeLabel(r TaskResult) string {
	switch {
	case r.Success:
		return "success"
	case r.Error != "":
		return r.Error
	default:
		return "failure"
	}
}

// ProviderLookup 按名称查找能力提供方。
type ProviderLookup interface {
	Get(name string) (agent.Provider, bool)
}

// Manager 顺序执行任务并写入事件日志。
type Manager struct {
	registry ProviderLookup
	events   eventlog.Appender
	policy   policy.Evaluator
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Option 定义可选配置。
type Option func(*Manager)

// WithPolicy 启用执行前的策略检查。
func WithPolicy(p policy.Evaluator) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithTracer 指定 tracer，默认取全局 TracerProvider。
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithLogger 指定组件日志。
func WithLogger(lg *slog.Logger) Option {
	return func(m *Manager) {
		if lg != nil {
			m.logger = lg
		}
	}
}

// NewManager 创建执行管理器。
func NewManager(registry ProviderLookup, events eventlog.Appender, opts ...Option) *Manager {
	m := &Manager{
		registry: registry,
		events:   events,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.Named("execution"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// ExecuteTask 执行单个任务。无论结果如何，都只写入一次 task.end。
func (m *Manager) ExecuteTask(ctx context.Context, task intent.Task, cond intent.Conditions) TaskResult {
	ctx, span := m.tracer.Start(ctx, "task."+task.Agent+"."+task.Action,
		trace.WithAttributes(
			attribute.String("jarvis.agent", task.Agent),
			attribute.String("jarvis.action", task.Action),
			attribute.String("jarvis.risk", string(task.Risk.Normalize())),
		))
	defer span.End()

	taskInfo := taskPayload(task)
	m.emit(ctx, eventlog.Event{"type": EventTaskStart, "task": taskInfo, "conditions": conditionsPayload(cond)})

	result := m.run(ctx, task, cond, taskInfo)

	m.emit(ctx, eventlog.Event{"type": EventTaskEnd, "task": taskInfo, "result": result.payload()})
	metrics.ObserveTask(task.Agent, outcomeLabel(result))

	span.SetAttributes(attribute.Bool("jarvis.success", result.Success))
	if !result.Success {
		span.SetStatus(codes.Error, outcomeLabel(result))
	}
	return result
}

func (m *Manager) run(ctx context.Context, task intent.Task, cond intent.Conditions, taskInfo map[string]any) TaskResult {
	var (
		provider agent.Provider
		ok       bool
	)
	if m.registry != nil {
		provider, ok = m.registry.Get(task.Agent)
	}
	if !ok || provider == nil {
		return TaskResult{Success: false, Error: xerrors.MessageOf(agent.ErrAgentNotFound)}
	}

	if m.policy != nil {
		if cond.AgentRisk == "" {
			cond.AgentRisk = agent.RiskOf(provider)
		}
		decision := m.policy.Evaluate(task, cond)
		m.emit(ctx, eventlog.Event{
			"type":    EventTaskPolicy,
			"task":    taskInfo,
			"allowed": decision.Allowed,
			"reason":  decision.Reason,
		})
		if !decision.Allowed {
			return TaskResult{Success: false, Error: ErrorPolicyDenied, Reason: decision.Reason}
		}
	}

	out, err := provider.Execute(ctx, task.Action, intent.CloneArgs(task.Args))
	if err != nil {
		m.logger.Warn("任务执行失败",
			slog.String("agent", task.Agent),
			slog.String("action", task.Action),
			slog.Any("error", err))
		return TaskResult{Success: false, Error: xerrors.MessageOf(err)}
	}
	return TaskResult{Success: true, Result: out}
}

// ExecutePlan 依次执行计划中的全部任务，失败不会中断后续任务，也不回滚。
func (m *Manager) ExecutePlan(ctx context.Context, plan intent.Plan, cond intent.Conditions) []TaskResult {
	results := make([]TaskResult, 0, len(plan))
	for _, task := range plan {
		results = append(results, m.ExecuteTask(ctx, task, cond))
	}
	return results
}

func (m *Manager) emit(ctx context.Context, ev eventlog.Event) {
	if m.events == nil {
		return
	}
	if _, err := m.events.Append(ctx, encodable(ev)); err != nil {
		m.logger.Warn("写入事件失败",
			slog.String("type", ev.Type()),
			slog.Any("error", err))
	}
}

func taskPayload(task intent.Task) map[string]any {
	args := intent.CloneArgs(task.Args)
	if args == nil {
		args = map[string]any{}
	}
	return map[string]any{
		"agent":      task.Agent,
		"action":     task.Action,
		"args":       args,
		"agent_risk": string(task.Risk.Normalize()),
	}
}
