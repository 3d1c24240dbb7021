package policy

import (
	"log/slog"

	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/pkg/logger"
)

// Decision 是一次评估的结果。
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
	Rule    string `json:"rule,omitempty"`
}

// Evaluator 抽象策略评估，便于执行层注入替身。
type Evaluator interface {
	Evaluate(task intent.Task, cond intent.Conditions) Decision
}

// Engine 依次执行规则，首个失败的规则决定结果。
type Engine struct {
	window     TimeWindowRule
	battery    BatteryRule
	confidence ConfidenceRule
	extra      []Rule
}

// Option 定义可选配置。
type Option func(*Engine)

// WithBlockedHours 设置禁止执行的小时区间 [start, end)。
func WithBlockedHours(start, end int) Option {
	return func(e *Engine) {
		e.window = TimeWindowRule{Start: start, End: end}
	}
}

// WithBatteryThreshold 设置电量下限。
func WithBatteryThreshold(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.battery.Threshold = v
		}
	}
}

// WithConfidenceThreshold 设置高风险动作要求的最低置信度。
func WithConfidenceThreshold(v float64) Option {
	return func(e *Engine) {
		if v > 0 {
			e.confidence.Threshold = v
		}
	}
}

// WithPowerActions 为某个 agent 登记影响供电的动作。
func WithPowerActions(agent string, actions ...string) Option {
	return func(e *Engine) {
		set := make(map[string]struct{}, len(actions))
		for _, a := range actions {
			set[a] = struct{}{}
		}
		e.battery.Actions[agent] = set
	}
}

// WithRule 在内置规则之后追加规则。
func WithRule(r Rule) Option {
	return func(e *Engine) {
		if r != nil {
			e.extra = append(e.extra, r)
		}
	}
}

// NewEngine 使用默认阈值构造策略引擎。
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		window:     TimeWindowRule{Start: DefaultBlockedStart, End: DefaultBlockedEnd},
		battery:    BatteryRule{Threshold: DefaultBatteryFloor, Actions: defaultPowerActions()},
		confidence: ConfidenceRule{Threshold: DefaultConfidenceBar},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Rules 返回按评估顺序排列的规则。
func (e *Engine) Rules() []Rule {
	rules := []Rule{e.window, e.battery, e.confidence}
	return append(rules, e.extra...)
}

// Evaluate 评估任务是否允许执行。
func (e *Engine) Evaluate(task intent.Task, cond intent.Conditions) Decision {
	for _, rule := range e.Rules() {
		if ok, reason := rule.Check(task, cond); !ok {
			metrics.ObservePolicyDenial(reason)
			logger.Audit().Info("policy denied",
				slog.String("agent", task.Agent),
				slog.String("action", task.Action),
				slog.String("rule", rule.Name()),
				slog.String("reason", reason),
			)
			return Decision{Allowed: false, Reason: reason, Rule: rule.Name()}
		}
	}
	return Decision{Allowed: true, Reason: ReasonOK}
}

var _ Evaluator = (*Engine)(nil)
