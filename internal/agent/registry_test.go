package agent

import (
	"context"
	"errors"
	"testing"

	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/intent"
)

type stubProvider struct {
	name     string
	priority int
	risk     intent.RiskTier
}

func (s stubProvider) Name() string { return s.name }

func (s stubProvider) Execute(context.Context, string, map[string]any) (map[string]any, error) {
	return map[string]any{"agent": s.name}, nil
}

func (s stubProvider) Priority() int { return s.priority }

func (s stubProvider) Risk() intent.RiskTier { return s.risk }

type matcher struct {
	stubProvider
	match bool
	err   error
}

func (m matcher) CanHandle(intent.Intent) (bool, error) { return m.match, m.err }

type bareProvider struct{ name string }

func (b bareProvider) Name() string { return b.name }

func (b bareProvider) Execute(context.Context, string, map[string]any) (map[string]any, error) {
	return nil, nil
}

func TestRegistryKeepsRegistrationOrderAndRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(stubProvider{name: "b"}, stubProvider{name: "a"})
	if err := reg.Register(stubProvider{name: "b"}); xerrors.CodeOf(err) != CodeDuplicate {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	names := reg.Names()
	if len(names) != 2 || names[0] != "b" || names[1] != "a" {
		t.Fatalf("unexpected order %v", names)
	}
	if !reg.Has("a") || reg.Has("missing") {
		t.Fatalf("Has returned unexpected result")
	}
}

func TestRegistryPriorityAndRiskDefaults(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(stubProvider{name: "hi", priority: 10, risk: intent.RiskHigh}, bareProvider{name: "bare"})
	if got := reg.Priority("hi"); got != 10 {
		t.Fatalf("expected 10, got %d", got)
	}
	if got := reg.Priority("bare"); got != 0 {
		t.Fatalf("expected default 0, got %d", got)
	}
	if got := reg.Priority("missing"); got != 0 {
		t.Fatalf("expected 0 for missing agent, got %d", got)
	}
	p, _ := reg.Get("bare")
	if RiskOf(p) != intent.RiskLow {
		t.Fatalf("undeclared risk should default to low")
	}
}

func TestFindForIntentSkipsFaultingAndAbsentProbes(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(
		bareProvider{name: "no_matcher"},
		matcher{stubProvider: stubProvider{name: "faulty"}, match: true, err: errors.New("matcher exploded")},
		matcher{stubProvider: stubProvider{name: "declines"}},
		matcher{stubProvider: stubProvider{name: "first"}, match: true},
		matcher{stubProvider: stubProvider{name: "second"}, match: true},
	)
	got, ok := reg.FindForIntent(intent.Intent{Name: "play"})
	if !ok || got.Name() != "first" {
		t.Fatalf("expected first matching provider, got %v", got)
	}

	empty := NewRegistry(bareProvider{name: "no_matcher"})
	if _, ok := empty.FindForIntent(intent.Intent{Name: "play"}); ok {
		t.Fatalf("expected no match")
	}
}

func TestDescribeListsCapabilities(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(matcher{stubProvider: stubProvider{name: "m", priority: 2}})
	desc := reg.Describe()
	if len(desc) != 1 || desc[0].Priority != 2 {
		t.Fatalf("unexpected descriptors %+v", desc)
	}
	if caps := desc[0].Capabilities; len(caps) != 2 || caps[1] != "can_handle" {
		t.Fatalf("unexpected capabilities %v", caps)
	}
}
