package builtin

import (
	"context"
	"sync"

	"Jarvis-Orchestrator/internal/agent"
)

// Radio 是 Wi-Fi 开关状态，由调用方持有并在多个提供方间共享。
type Radio struct {
	mu      sync.RWMutex
	enabled bool
}

// NewRadio 创建初始状态为 enabled 的开关。
func NewRadio(enabled bool) *Radio {
	return &Radio{enabled: enabled}
}

// Enabled 返回当前状态。
func (r *Radio) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Set 设置状态。
func (r *Radio) Set(enabled bool) {
	r.mu.Lock()
	r.enabled = enabled
	r.mu.Unlock()
}

// Toggle 翻转状态并返回新值。
func (r *Radio) Toggle() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = !r.enabled
	return r.enabled
}

// Wifi 基于共享 Radio 的模拟 Wi-Fi 提供方。
type Wifi struct {
	radio *Radio
}

// NewWifi 创建 wifi_agent。radio 为 nil 时使用独立的关闭状态。
func NewWifi(radio *Radio) *Wifi {
	if radio == nil {
		radio = NewRadio(false)
	}
	return &Wifi{radio: radio}
}

func (w *Wifi) Name() string { return "wifi_agent" }

func (w *Wifi) Execute(_ context.Context, action string, _ map[string]any) (map[string]any, error) {
	switch action {
	case "toggle":
		return map[string]any{"enabled": w.radio.Toggle()}, nil
	case "status":
		return map[string]any{"enabled": w.radio.Enabled()}, nil
	default:
		return nil, agent.UnknownAction(action)
	}
}
