package eventlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/observability/metrics"
	"Jarvis-Orchestrator/pkg/logger"
)

// Appender 是执行管理器等组件依赖的最小写接口。
type Appender interface {
	Append(ctx context.Context, event Event) (Envelope, error)
}

// Log 是基于 JSONL 文件的追加写日志。同一进程内的写入由互斥锁串行化。
type Log struct {
	path       string
	durability Durability
	clock      func() time.Time
	newID      func() string
	logger     *slog.Logger

	mu      sync.Mutex
	file    *os.File
	pending int
	syncFn  func(*os.File) error
}

// Option 定义可选配置。
type Option func(*Log)

// WithDurability 设置 fsync 策略。
func WithDurability(d Durability) Option {
	return func(l *Log) {
		l.durability = d
	}
}

// WithClock 替换时间源。
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithIDGenerator 替换信封 ID 生成器。
func WithIDGenerator(gen func() string) Option {
	return func(l *Log) {
		if gen != nil {
			l.newID = gen
		}
	}
}

// WithLogger 指定组件日志。
func WithLogger(lg *slog.Logger) Option {
	return func(l *Log) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// Open 打开（必要时创建）日志文件，后续写入均追加到文件末尾。
func Open(path string, opts ...Option) (*Log, error) {
	if path == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "event log path 不能为空")
	}
	l := &Log{
		path:       path,
		durability: SyncEveryWrite,
		clock:      time.Now,
		newID:      uuid.NewString,
		syncFn:     (*os.File).Sync,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	if l.logger == nil {
		l.logger = logger.Named("eventlog")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建事件日志目录失败")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开事件日志失败")
	}
	l.file = file
	return l, nil
}

// Path 返回日志文件路径。
func (l *Log) Path() string {
	return l.path
}

// Append 校验事件并写入一条新信封。fsync 失败只记录日志与指标，不向调用方返回。
func (l *Log) Append(_ context.Context, event Event) (Envelope, error) {
	if err := validate(event); err != nil {
		return Envelope{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return Envelope{}, xerrors.New(xerrors.CodeInitializationFailure, "event log 已关闭")
	}

	env := Envelope{
		ID:        l.newID(),
		Timestamp: epochSeconds(l.clock()),
		Version:   SchemaVersion,
		Event:     event,
	}
	line, err := json.Marshal(env)
	if err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeValidationFault, err, "事件无法编码为 JSON")
	}
	line = append(line, '\n')
	if _, err := l.file.Write(line); err != nil {
		return Envelope{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入事件日志失败")
	}
	metrics.ObserveEventAppend()

	l.pending++
	if l.pending >= l.durability.BatchSize() {
		l.syncLocked()
	}
	return env, nil
}

func (l *Log) syncLocked() {
	if l.pending == 0 {
		return
	}
	l.pending = 0
	if err := l.syncFn(l.file); err != nil {
		metrics.ObserveEventSyncFailure()
		l.logger.Warn("事件日志 fsync 失败", slog.String("path", l.path), slog.Any("error", err))
	}
}

// Sync 立即刷新尚未同步的追加。
func (l *Log) Sync() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.syncLocked()
	}
}

// Close 同步剩余数据并关闭文件。
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	l.syncLocked()
	err := l.file.Close()
	l.file = nil
	return err
}

// Scan 按文件顺序遍历可解析的信封，fn 返回错误时停止。
func (l *Log) Scan(fn func(Envelope) error) error {
	return scanFile(l.path, fn)
}

// ReadAll 返回全部可解析的信封。
func (l *Log) ReadAll() ([]Envelope, error) {
	var out []Envelope
	err := l.Scan(func(env Envelope) error {
		out = append(out, env)
		return nil
	})
	return out, err
}

// Tail 按原始顺序返回最后 n 条可解析的信封。
func (l *Log) Tail(n int) ([]Envelope, error) {
	if n <= 0 {
		return []Envelope{}, nil
	}
	ring := make([]Envelope, 0, n)
	start := 0
	err := l.Scan(func(env Envelope) error {
		if len(ring) < n {
			ring = append(ring, env)
			return nil
		}
		ring[start] = env
		start = (start + 1) % n
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]Envelope, 0, len(ring))
	out = append(out, ring[start:]...)
	return append(out, ring[:start]...), nil
}

// ReadFile 以只读方式读取任意事件日志文件，供命令行工具使用。
func ReadFile(path string, fn func(Envelope) error) error {
	return scanFile(path, fn)
}

func scanFile(path string, fn func(Envelope) error) error {
	file, err := os.Open(path)
	if err != nil {
		if stdErrors.Is(err, os.ErrNotExist) {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "打开事件日志失败")
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		line, readErr := reader.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var env Envelope
			if err := json.Unmarshal(trimmed, &env); err == nil && env.Event != nil {
				if err := fn(env); err != nil {
					return err
				}
			}
		}
		if readErr != nil {
			if stdErrors.Is(readErr, io.EOF) {
				return nil
			}
			return xerrors.Wrap(xerrors.CodeStorageFailure, readErr, "读取事件日志失败")
		}
	}
}
