package approval

import (
	"context"
	"math"
	"strings"
	"time"
)

const (
	ActionGrant  = "grant"
	ActionRevoke = "revoke"

	// Wildcard 匹配某个 agent 的全部动作。
	Wildcard = "*"
)

// Record 是日志中的一条授权或撤销记录。
type Record struct {
	Key    string   `json:"key"`
	Action string   `json:"action"`
	Expiry *float64 `json:"expiry,omitempty"`
}

// Journal 抽象授权记录的追加写与回放。
type Journal interface {
	Append(ctx context.Context, rec Record) error
	Replay(ctx context.Context, fn func(Record) error) error
	Close() error
}

// Key 生成 agent:action 形式的键，空动作视为通配。
func Key(agent, action string) string {
	action = strings.TrimSpace(action)
	if action == "" {
		action = Wildcard
	}
	return agent + ":" + action
}

func grantRecord(key string, expiry time.Time) Record {
	v := float64(expiry.UnixNano()) / 1e9
	return Record{Key: key, Action: ActionGrant, Expiry: &v}
}

func revokeRecord(key string) Record {
	return Record{Key: key, Action: ActionRevoke}
}

func fromEpoch(v float64) time.Time {
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9))
}
