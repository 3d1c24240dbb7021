package planner

import (
	"Jarvis-Orchestrator/internal/intent"
)

// Mapping 描述单步意图映射。
type Mapping struct {
	Agent  string
	Action string
	Risk   intent.RiskTier
}

// Planner 是纯函数式的意图到计划映射，同一意图总是得到相同计划。
type Planner struct {
	single map[string]Mapping
}

// Option 定义可选配置。
type Option func(*Planner)

// WithMapping 追加或覆盖单步映射。多步内置意图不受影响。
func WithMapping(name, agent, action string, risk intent.RiskTier) Option {
	return func(p *Planner) {
		p.single[name] = Mapping{Agent: agent, Action: action, Risk: risk.Normalize()}
	}
}

// New 创建带内置映射的规划器。
func New(opts ...Option) *Planner {
	p := &Planner{
		single: map[string]Mapping{
			"shutdown_system": {Agent: "power_agent", Action: "shutdown", Risk: intent.RiskHigh},
			"reboot_system":   {Agent: "power_agent", Action: "reboot", Risk: intent.RiskHigh},
			"open_app":        {Agent: "app_agent", Action: "open", Risk: intent.RiskLow},
			"play_music":      {Agent: "music_agent", Action: "play", Risk: intent.RiskLow},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Plan 为意图生成任务序列，未知意图返回空计划。
func (p *Planner) Plan(in intent.Intent) intent.Plan {
	switch in.Name {
	case "manage_wifi":
		return intent.Plan{
			{Agent: "wifi_agent", Action: "toggle", Args: map[string]any{"text": in.Text}, Risk: intent.RiskLow},
			{Agent: "network_agent", Action: "status", Args: map[string]any{}, Risk: intent.RiskMedium},
		}
	case "open_and_search":
		app := in.Entity("app")
		if app == "" {
			app = "browser"
		}
		query := in.Entity("query")
		if query == "" {
			query = in.Text
		}
		return intent.Plan{
			{Agent: "app_agent", Action: "open", Args: map[string]any{"app": app}, Risk: intent.RiskLow},
			{Agent: "search_agent", Action: "search", Args: map[string]any{"q": query}, Risk: intent.RiskLow},
		}
	}

	m, ok := p.single[in.Name]
	if !ok {
		return intent.Plan{}
	}
	entities := intent.CloneArgs(in.Entities)
	if entities == nil {
		entities = map[string]any{}
	}
	return intent.Plan{{
		Agent:  m.Agent,
		Action: m.Action,
		Args:   map[string]any{"text": in.Text, "entities": entities},
		Risk:   m.Risk,
	}}
}
