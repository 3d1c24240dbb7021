package intent

import "strings"

// RiskTier 描述任务可在无显式确认下执行的自主程度。
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Normalize 将空值与未知值视为 low。
func (r RiskTier) Normalize() RiskTier {
	switch RiskTier(strings.ToLower(string(r))) {
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	default:
		return RiskLow
	}
}

// Unknown 是解析器无法识别意图时使用的名称。
const Unknown = "unknown"

// Intent 是外部解析器产出的结构化请求，创建后不可变。
type Intent struct {
	Name       string         `json:"intent"`
	Confidence float64        `json:"confidence"`
	Entities   map[string]any `json:"entities,omitempty"`
	Text       string         `json:"text,omitempty"`
	// Agent 是跨 Agent 规划时的显式提供方提示。
	Agent string `json:"agent,omitempty"`
}

// Resolvable 判断意图名称是否可用于规划。
func (i Intent) Resolvable() bool {
	name := strings.TrimSpace(i.Name)
	return name != "" && name != Unknown
}

// Entity 返回字符串类型的实体值。
func (i Intent) Entity(key string) string {
	if i.Entities == nil {
		return ""
	}
	if v, ok := i.Entities[key].(string); ok {
		return v
	}
	return ""
}

// Task 是指向单个能力提供方的具体动作。
type Task struct {
	Agent  string         `json:"agent"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
	Risk   RiskTier       `json:"agent_risk"`
}

// Plan 是为一个意图生成的有序任务序列。空计划表示没有适用映射。
type Plan []Task

// Conditions 是调用方提供的运行时上下文。
type Conditions struct {
	Hour           *int     `json:"time_hour,omitempty"`
	Battery        *float64 `json:"battery,omitempty"`
	UserConfidence *float64 `json:"user_confidence,omitempty"`
	UserConfirmed  bool     `json:"user_confirmed,omitempty"`
	AgentRisk      RiskTier `json:"agent_risk,omitempty"`
	PreferAgent    string   `json:"prefer_agent,omitempty"`
}

// Confidence 返回调用方置信度，未提供时为 1.0。
func (c Conditions) Confidence() float64 {
	if c.UserConfidence == nil {
		return 1.0
	}
	return *c.UserConfidence
}

// Confirmed 返回设置了 UserConfirmed 的副本。
func (c Conditions) Confirmed() Conditions {
	c.UserConfirmed = true
	return c
}

// WithHour 返回设置了小时的副本。
func (c Conditions) WithHour(hour int) Conditions {
	c.Hour = &hour
	return c
}

// WithBattery 返回设置了电量的副本。
func (c Conditions) WithBattery(level float64) Conditions {
	c.Battery = &level
	return c
}

// WithUserConfidence 返回设置了置信度的副本。
func (c Conditions) WithUserConfidence(v float64) Conditions {
	c.UserConfidence = &v
	return c
}

// WithAgentRisk 返回设置了 agent 风险等级的副本。
func (c Conditions) WithAgentRisk(r RiskTier) Conditions {
	c.AgentRisk = r
	return c
}

// CloneArgs 复制一层参数映射。
func CloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
