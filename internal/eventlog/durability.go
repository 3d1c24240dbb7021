package eventlog

import (
	"fmt"
	"strings"
)

// Durability 决定 Append 之后何时执行 fsync。
type Durability struct {
	every int
}

// SyncEveryWrite 在每次追加后执行 fsync。
var SyncEveryWrite = Durability{every: 1}

// SyncBatched 每追加 n 条执行一次 fsync，Close 时补齐。
func SyncBatched(n int) Durability {
	if n <= 1 {
		return SyncEveryWrite
	}
	return Durability{every: n}
}

// BatchSize 返回两次 fsync 之间的追加条数。
func (d Durability) BatchSize() int {
	if d.every <= 0 {
		return 1
	}
	return d.every
}

func (d Durability) String() string {
	if d.BatchSize() == 1 {
		return "sync"
	}
	return fmt.Sprintf("batched(%d)", d.every)
}

// ParseDurability 解析配置中的 durability 字段，可选值为 sync 与 batched。
func ParseDurability(mode string, batch int) (Durability, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "sync", "always":
		return SyncEveryWrite, nil
	case "batched", "batch":
		if batch <= 1 {
			return Durability{}, fmt.Errorf("batched durability requires batch_size > 1, got %d", batch)
		}
		return SyncBatched(batch), nil
	default:
		return Durability{}, fmt.Errorf("unknown event log durability %q", mode)
	}
}
