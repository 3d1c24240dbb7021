package builtin

import (
	"context"
	"net/url"
	"strings"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/intent"
)

// Noop 回显动作与参数。
type Noop struct{}

func (Noop) Name() string { return "noop_agent" }

func (Noop) Execute(_ context.Context, action string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	return map[string]any{"action": action, "args": args}, nil
}

// Network 返回模拟的网络状态。
type Network struct{}

func (Network) Name() string { return "network_agent" }

func (Network) Risk() intent.RiskTier { return intent.RiskMedium }

func (Network) Execute(_ context.Context, action string, _ map[string]any) (map[string]any, error) {
	if action != "status" {
		return nil, agent.UnknownAction(action)
	}
	return map[string]any{"network": "ok", "latency_ms": 12}, nil
}

// Power 模拟关机与重启，不会真正操作主机。
type Power struct{}

func (Power) Name() string { return "power_agent" }

func (Power) Risk() intent.RiskTier { return intent.RiskHigh }

func (Power) Execute(_ context.Context, action string, _ map[string]any) (map[string]any, error) {
	switch action {
	case "shutdown", "reboot":
		return map[string]any{"action": action, "simulated": true}, nil
	default:
		return nil, agent.UnknownAction(action)
	}
}

// App 模拟打开应用。
type App struct{}

func (App) Name() string { return "app_agent" }

func (App) Execute(_ context.Context, action string, args map[string]any) (map[string]any, error) {
	if action != "open" {
		return nil, agent.UnknownAction(action)
	}
	app := stringArg(args, "app")
	if app == "" {
		app = entityArg(args, "app")
	}
	if app == "" {
		app = "browser"
	}
	return map[string]any{"opened": app, "simulated": true}, nil
}

// Search 生成网页搜索地址。
type Search struct {
	BaseURL string
}

// DefaultSearchURL 是 Search 未配置时使用的搜索入口。
const DefaultSearchURL = "https://duckduckgo.com/"

func (Search) Name() string { return "search_agent" }

func (s Search) Execute(_ context.Context, action string, args map[string]any) (map[string]any, error) {
	if action != "search" {
		return nil, agent.UnknownAction(action)
	}
	q := stringArg(args, "q")
	if q == "" {
		q = stringArg(args, "text")
	}
	base := s.BaseURL
	if base == "" {
		base = DefaultSearchURL
	}
	return map[string]any{"query": q, "url": base + "?" + url.Values{"q": {q}}.Encode()}, nil
}

func stringArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	v, _ := args[key].(string)
	return strings.TrimSpace(v)
}

func entityArg(args map[string]any, key string) string {
	if args == nil {
		return ""
	}
	entities, ok := args["entities"].(map[string]any)
	if !ok {
		return ""
	}
	v, _ := entities[key].(string)
	return strings.TrimSpace(v)
}
