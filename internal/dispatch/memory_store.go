package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

// MemoryStore 以内存方式保存请求状态，读取时返回副本。
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]*Request
	now      func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, req *Request) error {
	if req == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "request 不能为空")
	}
	if strings.TrimSpace(req.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "请求 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.requests[req.ID]; ok {
		return ErrRequestConflict
	}
	now := m.now().Unix()
	if req.CreatedAt == 0 {
		req.CreatedAt = now
	}
	req.UpdatedAt = now
	m.requests[req.ID] = cloneRequest(req)
	return nil
}

// Get 返回请求副本。
func (m *MemoryStore) Get(_ context.Context, id string) (*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return cloneRequest(req), nil
}

// Claim 将请求状态更新为运行中。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status.Terminal() {
		return cloneRequest(req), ErrRequestCompleted
	}
	switch req.Status {
	case StatusPending:
	case StatusAwaitingConfirmation:
		if req.Confirmation == nil {
			return cloneRequest(req), ErrRequestConflict
		}
	default:
		return cloneRequest(req), ErrRequestConflict
	}
	req.Status = StatusRunning
	req.Error = ""
	req.ErrorCode = ""
	req.UpdatedAt = m.now().Unix()
	return cloneRequest(req), nil
}

// Complete 写回一次处理的结果。
func (m *MemoryStore) Complete(_ context.Context, id string, c Completion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	applyCompletion(req, c)
	req.UpdatedAt = m.now().Unix()
	return nil
}

// AttachConfirmation 记录调用方对待确认请求的回答。
func (m *MemoryStore) AttachConfirmation(_ context.Context, id string, answer ConfirmationAnswer) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	req, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	if req.Status.Terminal() {
		return cloneRequest(req), ErrRequestCompleted
	}
	if req.Status != StatusAwaitingConfirmation || req.Confirmation != nil {
		return cloneRequest(req), ErrRequestConflict
	}
	req.Confirmation = &answer
	req.UpdatedAt = m.now().Unix()
	return cloneRequest(req), nil
}

// List 返回符合过滤条件的请求。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()

	results := make([]*Request, 0, len(m.requests))
	for _, req := range m.requests {
		if !matchesListFilters(req, opts) {
			continue
		}
		results = append(results, cloneRequest(req))
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if opts.Order == SortByUpdatedAsc {
			if a.UpdatedAt == b.UpdatedAt {
				if a.CreatedAt == b.CreatedAt {
					return a.ID < b.ID
				}
				return a.CreatedAt < b.CreatedAt
			}
			return a.UpdatedAt < b.UpdatedAt
		}
		if a.UpdatedAt == b.UpdatedAt {
			if a.CreatedAt == b.CreatedAt {
				return a.ID > b.ID
			}
			return a.CreatedAt > b.CreatedAt
		}
		return a.UpdatedAt > b.UpdatedAt
	})

	if opts.Offset >= len(results) {
		return []*Request{}, nil
	}
	results = results[opts.Offset:]
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// Stats 实现 Store 接口。
func (m *MemoryStore) Stats(_ context.Context, opts ListOptions) (RequestStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	opts.applyDefaults()
	var stats RequestStats
	for _, req := range m.requests {
		if matchesListFilters(req, opts) {
			stats.add(req)
		}
	}
	return stats, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

func applyCompletion(req *Request, c Completion) {
	req.Status = c.Status
	req.Reason = c.Reason
	if c.Decision != nil {
		req.Decision = cloneDecision(c.Decision)
	}
	req.Results = cloneRequest(&Request{Results: c.Results}).Results
	if c.Outcome != nil {
		req.Outcome = cloneRequest(&Request{Outcome: c.Outcome}).Outcome
	}
	req.Error = c.Error
	req.ErrorCode = c.ErrorCode
}

func matchesListFilters(req *Request, opts ListOptions) bool {
	if opts.Mode != "" && req.Mode != opts.Mode {
		return false
	}
	if len(opts.Statuses) == 0 {
		return true
	}
	for _, status := range opts.Statuses {
		if req.Status == status {
			return true
		}
	}
	return false
}

var _ Store = (*MemoryStore)(nil)
