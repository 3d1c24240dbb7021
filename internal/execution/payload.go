package execution

import (
	"encoding/json"
	"fmt"

	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/intent"
)

// encodable 返回可以写入事件日志的事件副本：无法编码为 JSON 的值
// (NaN、±Inf、chan、func 等) 被替换为 fmt.Sprint 的文本形式。
func encodable(ev eventlog.Event) eventlog.Event {
	if _, err := json.Marshal(ev); err == nil {
		return ev
	}
	out := make(eventlog.Event, len(ev))
	for k, v := range ev {
		out[k] = jsonSafe(v)
	}
	return out
}

func jsonSafe(v any) any {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = jsonSafe(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = jsonSafe(item)
		}
		return out
	default:
		return fmt.Sprint(v)
	}
}

func conditionsPayload(cond intent.Conditions) map[string]any {
	out := map[string]any{}
	if cond.Hour != nil {
		out["time_hour"] = *cond.Hour
	}
	if cond.Battery != nil {
		out["battery"] = *cond.Battery
	}
	if cond.UserConfidence != nil {
		out["user_confidence"] = *cond.UserConfidence
	}
	if cond.UserConfirmed {
		out["user_confirmed"] = true
	}
	if cond.AgentRisk != "" {
		out["agent_risk"] = string(cond.AgentRisk)
	}
	if cond.PreferAgent != "" {
		out["prefer_agent"] = cond.PreferAgent
	}
	return out
}
