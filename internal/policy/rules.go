package policy

import (
	"fmt"

	"Jarvis-Orchestrator/internal/intent"
)

const (
	ReasonOK            = "ok"
	ReasonBatteryTooLow = "battery_too_low"
	ReasonLowConfidence = "low_user_confidence_for_high_risk_action"

	DefaultBlockedStart  = 2
	DefaultBlockedEnd    = 4
	DefaultBatteryFloor  = 0.05
	DefaultConfidenceBar = 0.85

	powerAgent = "power_agent"
)

// Rule 是单条策略规则。返回 ok=false 时 reason 即为拒绝原因。
type Rule interface {
	Name() string
	Check(task intent.Task, cond intent.Conditions) (ok bool, reason string)
}

// TimeWindowRule 在 [Start, End) 小时区间内拒绝所有任务。Start > End 时不匹配任何小时。
type TimeWindowRule struct {
	Start int
	End   int
}

func (r TimeWindowRule) Name() string { return "time_window" }

func (r TimeWindowRule) Check(_ intent.Task, cond intent.Conditions) (bool, string) {
	if cond.Hour == nil {
		return true, ""
	}
	h := *cond.Hour
	if r.Start <= h && h < r.End {
		return false, fmt.Sprintf("action restricted during hours %d-%d", r.Start, r.End)
	}
	return true, ""
}

// BatteryRule 在电量过低且未确认时拒绝影响供电的动作。
type BatteryRule struct {
	Threshold float64
	Actions   map[string]map[string]struct{}
}

func (r BatteryRule) Name() string { return "battery" }

func (r BatteryRule) affects(task intent.Task) bool {
	actions, ok := r.Actions[task.Agent]
	if !ok {
		return false
	}
	_, ok = actions[task.Action]
	return ok
}

func (r BatteryRule) Check(task intent.Task, cond intent.Conditions) (bool, string) {
	if cond.Battery == nil || cond.UserConfirmed || !r.affects(task) {
		return true, ""
	}
	if *cond.Battery < r.Threshold {
		return false, ReasonBatteryTooLow
	}
	return true, ""
}

// ConfidenceRule 要求高风险动作具备足够的用户置信度，除非已确认。
type ConfidenceRule struct {
	Threshold float64
}

func (r ConfidenceRule) Name() string { return "confidence" }

func (r ConfidenceRule) Check(task intent.Task, cond intent.Conditions) (bool, string) {
	risk := cond.AgentRisk
	if risk == "" {
		risk = task.Risk
	}
	if risk.Normalize() != intent.RiskHigh || cond.UserConfirmed {
		return true, ""
	}
	if cond.Confidence() < r.Threshold {
		return false, ReasonLowConfidence
	}
	return true, ""
}

func defaultPowerActions() map[string]map[string]struct{} {
	return map[string]map[string]struct{}{
		powerAgent: {"shutdown": {}, "reboot": {}},
	}
}
