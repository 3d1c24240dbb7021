package confirm

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/eventlog"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/planner"
	"Jarvis-Orchestrator/internal/router"
)

type echoProvider struct{ name string }

func (e echoProvider) Name() string { return e.name }

func (e echoProvider) Execute(_ context.Context, action string, _ map[string]any) (map[string]any, error) {
	return map[string]any{"agent": e.name, "action": action}, nil
}

type fixture struct {
	coord  *Coordinator
	router *router.Router
	store  *approval.Store
	events *eventlog.Log
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	now := time.Unix(1700000000, 0)

	store, err := approval.OpenFile(context.Background(), filepath.Join(dir, "approvals.jsonl"),
		approval.WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("approval store: %v", err)
	}
	events, err := eventlog.Open(filepath.Join(dir, "events.jsonl"))
	if err != nil {
		t.Fatalf("event log: %v", err)
	}
	t.Cleanup(func() { _ = events.Close() })

	reg := agent.NewRegistry(echoProvider{name: "power_agent"}, echoProvider{name: "app_agent"})
	r := router.New(planner.New(), reg, store)
	exec := execution.NewManager(reg, events)
	return fixture{
		coord:  NewCoordinator(r, exec, store),
		router: r,
		store:  store,
		events: events,
	}
}

func (f fixture) eventCount(t *testing.T) int {
	t.Helper()
	all, err := f.events.ReadAll()
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	return len(all)
}

var shutdown = intent.Intent{Name: "shutdown_system", Confidence: 0.9, Text: "shut down"}

func TestNoConfirmationRequired(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewScriptedPrompter()
	res := f.coord.Resolve(context.Background(), intent.Intent{Name: "open_app"}, intent.Conditions{}, p)

	if res.Status != StatusNoConfirmationRequired || res.Route == nil || !res.Route.OK() {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(p.Asked()) != 0 {
		t.Fatalf("user must not be prompted: %v", p.Asked())
	}
}

func TestDeniedConfirmationLogsNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	p := NewScriptedPrompter("n")
	res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, p)

	if res.Status != StatusDenied {
		t.Fatalf("expected denied, got %+v", res)
	}
	if n := f.eventCount(t); n != 0 {
		t.Fatalf("denied confirmation must not log events, got %d", n)
	}
	asked := p.Asked()
	if len(asked) != 1 || asked[0] != "Confirm action 'shutdown_system'? (y/n): " {
		t.Fatalf("unexpected prompts %q", asked)
	}
}

func TestInputFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, NewScriptedPrompter())
	if res.Status != StatusError || res.Reason != ReasonInputFailed {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestConfirmedExecutesWithoutRemembering(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, NewScriptedPrompter(" YES ", "0"))

	if res.Status != StatusConfirmed || len(res.Results) != 1 || !res.Results[0].Success {
		t.Fatalf("unexpected result %+v", res)
	}
	if n := f.eventCount(t); n != 2 {
		t.Fatalf("expected start and end events, got %d", n)
	}
	if f.store.IsApproved("power_agent", "shutdown") {
		t.Fatalf("zero hours must not grant an approval")
	}
}

func TestRememberHoursGrantsFirstTask(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, NewScriptedPrompter("y", "2"))
	if res.Status != StatusConfirmed {
		t.Fatalf("unexpected result %+v", res)
	}
	if !f.store.IsApproved("power_agent", "shutdown") {
		t.Fatalf("expected remembered approval")
	}
	if f.store.IsApproved("power_agent", "reboot") {
		t.Fatalf("approval must be scoped to the confirmed action")
	}

	d := f.router.Route(context.Background(), shutdown, intent.Conditions{})
	if !d.OK() {
		t.Fatalf("remembered approval should skip confirmation, got %+v", d)
	}
}

func TestUnparseableOrMissingHoursMeanZero(t *testing.T) {
	t.Parallel()

	for _, answers := range [][]string{{"y", "soon"}, {"y"}} {
		f := newFixture(t)
		res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, NewScriptedPrompter(answers...))
		if res.Status != StatusConfirmed {
			t.Fatalf("answers %v: unexpected result %+v", answers, res)
		}
		if len(f.store.ListActive()) != 0 {
			t.Fatalf("answers %v: no approval expected", answers)
		}
	}
}

func TestLinePrompterReadsLines(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	p := NewLinePrompter(strings.NewReader("yes\r\n3"), &out)
	first, err := p.Prompt(context.Background(), "a? ")
	if err != nil || first != "yes" {
		t.Fatalf("unexpected first answer %q, %v", first, err)
	}
	second, err := p.Prompt(context.Background(), "b? ")
	if err != nil || second != "3" {
		t.Fatalf("unexpected second answer %q, %v", second, err)
	}
	if _, err := p.Prompt(context.Background(), "c? "); err == nil {
		t.Fatalf("expected EOF error")
	}
	if out.String() != "a? b? c? " {
		t.Fatalf("unexpected prompts %q", out.String())
	}
}

func TestHugeRememberHoursAreClamped(t *testing.T) {
	t.Parallel()

	now := time.Unix(1700000000, 0)
	for _, answer := range []string{"2562048", "5124096", "9223372036854775807"} {
		f := newFixture(t)
		res := f.coord.Resolve(context.Background(), shutdown, intent.Conditions{}, NewScriptedPrompter("y", answer))
		if res.Status != StatusConfirmed {
			t.Fatalf("%s: unexpected result %+v", answer, res)
		}
		grants := f.store.ActiveSorted()
		if len(grants) != 1 {
			t.Fatalf("%s: expected one grant, got %+v", answer, grants)
		}
		want := now.Add(time.Duration(approval.MaxHours) * time.Hour)
		if !grants[0].Expiry.Equal(want) {
			t.Fatalf("%s: expiry %v, want %v", answer, grants[0].Expiry, want)
		}
	}
}
