package agent

import (
	"log/slog"
	"sync"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/pkg/logger"
)

// Registry 按注册顺序保存能力提供方。
type Registry struct {
	mu        sync.RWMutex
	order     []string
	providers map[string]Provider
}

// NewRegistry 创建空注册表，可选地立即注册提供方。
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider)}
	for _, p := range providers {
		_ = r.Register(p)
	}
	return r
}

// Register 以提供方自身名称注册。
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "provider 不能为空")
	}
	return r.RegisterAs(p.Name(), p)
}

// RegisterAs 以指定名称注册。同名重复注册会被拒绝。
func (r *Registry) RegisterAs(name string, p Provider) error {
	if name == "" || p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "provider 名称和实例不能为空")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[name]; exists {
		return xerrors.New(CodeDuplicate, "", xerrors.WithMetadata("agent", name))
	}
	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get 返回指定名称的提供方。
func (r *Registry) Get(name string) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Has 判断提供方是否已注册。
func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names 按注册顺序返回所有提供方名称。
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Priority 返回提供方优先级，未注册或未声明时为 0。
func (r *Registry) Priority(name string) int {
	p, ok := r.Get(name)
	if !ok {
		return 0
	}
	return PriorityOf(p)
}

// FindForIntent 返回第一个声明可以处理该意图的提供方。
// 未实现 IntentMatcher 或探测返回错误的提供方都视为不匹配。
func (r *Registry) FindForIntent(in intent.Intent) (Provider, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	candidates := make([]Provider, 0, len(r.order))
	for _, name := range r.order {
		candidates = append(candidates, r.providers[name])
	}
	r.mu.RUnlock()

	for _, p := range candidates {
		matcher, ok := p.(IntentMatcher)
		if !ok {
			continue
		}
		matched, err := matcher.CanHandle(in)
		if err != nil {
			logger.Named("agent.registry").Debug("能力探测失败，视为不匹配",
				slog.String("agent", p.Name()),
				slog.String("intent", in.Name),
				slog.Any("error", err))
			continue
		}
		if matched {
			return p, true
		}
	}
	return nil, false
}

// Descriptor 汇总提供方的元数据，供 API 与 CLI 展示。
type Descriptor struct {
	Name         string          `json:"name"`
	Priority     int             `json:"priority"`
	Risk         intent.RiskTier `json:"risk"`
	Capabilities []string        `json:"capabilities"`
}

// Describe 按注册顺序返回所有提供方的描述。
func (r *Registry) Describe() []Descriptor {
	names := r.Names()
	out := make([]Descriptor, 0, len(names))
	for _, name := range names {
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		caps := []string{"execute"}
		if _, ok := p.(Performer); ok {
			caps = append(caps, "perform")
		}
		if _, ok := p.(PreconditionChecker); ok {
			caps = append(caps, "check_precondition")
		}
		if _, ok := p.(IntentMatcher); ok {
			caps = append(caps, "can_handle")
		}
		out = append(out, Descriptor{Name: name, Priority: PriorityOf(p), Risk: RiskOf(p), Capabilities: caps})
	}
	return out
}
