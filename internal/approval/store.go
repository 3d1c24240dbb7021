package approval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/pkg/logger"
)

// Store 维护 key 到过期时间的内存索引，并把每次变更追加到 Journal。
type Store struct {
	journal   Journal
	confirmer Confirmer
	clock     func() time.Time
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[string]time.Time
}

// Option 定义可选配置。
type Option func(*Store)

// WithConfirmer 注入运行时交互确认能力。
func WithConfirmer(c Confirmer) Option {
	return func(s *Store) {
		s.confirmer = c
	}
}

// WithClock 替换时间源。
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger 指定组件日志。
func WithLogger(lg *slog.Logger) Option {
	return func(s *Store) {
		if lg != nil {
			s.logger = lg
		}
	}
}

// Open 回放 journal 并返回可用的 Store。回放只在此处发生一次。
func Open(ctx context.Context, journal Journal, opts ...Option) (*Store, error) {
	if journal == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "approval journal 不能为空")
	}
	s := &Store{
		journal: journal,
		clock:   time.Now,
		entries: make(map[string]time.Time),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.logger == nil {
		s.logger = logger.Named("approval")
	}

	skipped := 0
	err := journal.Replay(ctx, func(rec Record) error {
		if !s.apply(rec) {
			skipped++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("回放授权记录时跳过无效条目", slog.Int("skipped", skipped))
	}
	return s, nil
}

// OpenFile 是基于 JSONL 文件的便捷构造函数。
func OpenFile(ctx context.Context, path string, opts ...Option) (*Store, error) {
	journal, err := NewFileJournal(path)
	if err != nil {
		return nil, err
	}
	return Open(ctx, journal, opts...)
}

func (s *Store) apply(rec Record) bool {
	key := strings.TrimSpace(rec.Key)
	if key == "" {
		return false
	}
	action := rec.Action
	if action == "" {
		action = ActionGrant
	}
	switch action {
	case ActionGrant:
		if rec.Expiry == nil || *rec.Expiry <= 0 {
			return false
		}
		s.entries[key] = fromEpoch(*rec.Expiry)
	case ActionRevoke:
		delete(s.entries, key)
	default:
		return false
	}
	return true
}

// Grant 为 agent:action（空动作或 "*" 为通配）授予 ttl 时长的授权，返回过期时间。
func (s *Store) Grant(ctx context.Context, agent, action string, ttl time.Duration) (time.Time, error) {
	if strings.TrimSpace(agent) == "" {
		return time.Time{}, xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	if ttl <= 0 {
		return time.Time{}, xerrors.New(xerrors.CodeInvalidArgument, "授权时长必须大于 0")
	}
	key := Key(agent, action)

	s.mu.Lock()
	defer s.mu.Unlock()
	expiry := s.clock().Add(ttl)
	if err := s.journal.Append(ctx, grantRecord(key, expiry)); err != nil {
		return time.Time{}, err
	}
	s.entries[key] = expiry

	logger.Audit().Info("approval granted",
		slog.String("key", key),
		slog.Time("expiry", expiry),
	)
	return expiry, nil
}

// Revoke 删除内存中的授权（如存在），并无条件追加 revoke 记录。
func (s *Store) Revoke(ctx context.Context, agent, action string) error {
	if strings.TrimSpace(agent) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "agent 不能为空")
	}
	key := Key(agent, action)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.journal.Append(ctx, revokeRecord(key)); err != nil {
		return err
	}
	_, existed := s.entries[key]
	delete(s.entries, key)

	logger.Audit().Info("approval revoked",
		slog.String("key", key),
		slog.Bool("existed", existed),
	)
	return nil
}

// IsApproved 先检查具体键，再检查通配键，过期时间必须严格晚于当前时间。
func (s *Store) IsApproved(agent, action string) bool {
	if s == nil {
		return false
	}
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if exp, ok := s.entries[Key(agent, action)]; ok && exp.After(now) {
		return true
	}
	if exp, ok := s.entries[Key(agent, Wildcard)]; ok && exp.After(now) {
		return true
	}
	return false
}

// ListActive 返回尚未过期的授权。
func (s *Store) ListActive() map[string]time.Time {
	now := s.clock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]time.Time, len(s.entries))
	for k, exp := range s.entries {
		if exp.After(now) {
			out[k] = exp
		}
	}
	return out
}

// ActiveGrant 描述一条有效授权，供展示使用。
type ActiveGrant struct {
	Key    string    `json:"key"`
	Expiry time.Time `json:"expiry"`
}

// ActiveSorted 按 key 排序返回有效授权。
func (s *Store) ActiveSorted() []ActiveGrant {
	active := s.ListActive()
	out := make([]ActiveGrant, 0, len(active))
	for k, exp := range active {
		out = append(out, ActiveGrant{Key: k, Expiry: exp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RequestApproval 委托给注入的 Confirmer。未配置或出错时一律拒绝。
func (s *Store) RequestApproval(ctx context.Context, message string) bool {
	if s == nil || s.confirmer == nil {
		return false
	}
	ok, err := s.confirmer.Confirm(ctx, message)
	if err != nil {
		s.logger.Warn("运行时确认失败，按拒绝处理", slog.String("message", message), slog.Any("error", err))
		return false
	}
	logger.Audit().Info("runtime approval answered",
		slog.String("message", message),
		slog.Bool("approved", ok),
	)
	return ok
}

// Close 关闭底层 journal。
func (s *Store) Close() error {
	if s == nil || s.journal == nil {
		return nil
	}
	return s.journal.Close()
}
