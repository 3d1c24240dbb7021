package eventlog

import (
	"fmt"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

// SchemaVersion 是当前写入的信封版本。
const SchemaVersion = "v1"

// Event 是信封中携带的载荷，至少包含字符串类型的 "type" 字段。
type Event map[string]any

// Type 返回事件类型。
func (e Event) Type() string {
	t, _ := e["type"].(string)
	return t
}

// Envelope 是写入日志的不可变记录。
type Envelope struct {
	ID        string  `json:"id"`
	Timestamp float64 `json:"timestamp"`
	Version   string  `json:"version"`
	Event     Event   `json:"event"`
}

// Time 将浮点秒时间戳转换为 time.Time。
func (e Envelope) Time() time.Time {
	sec := int64(e.Timestamp)
	nsec := int64((e.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func epochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func validate(event Event) error {
	if event == nil {
		return xerrors.New(xerrors.CodeValidationFault, "event must be a mapping")
	}
	raw, ok := event["type"]
	if !ok {
		return xerrors.New(xerrors.CodeValidationFault, "event must include a 'type' field")
	}
	if s, ok := raw.(string); !ok || s == "" {
		return xerrors.New(xerrors.CodeValidationFault, fmt.Sprintf("event type must be a non-empty string, got %T", raw))
	}
	return nil
}
