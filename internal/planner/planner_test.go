package planner

import (
	"reflect"
	"testing"

	"Jarvis-Orchestrator/internal/intent"
)

func TestManageWifiProducesTwoSteps(t *testing.T) {
	t.Parallel()

	plan := New().Plan(intent.Intent{Name: "manage_wifi", Text: "turn wifi off"})
	if len(plan) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(plan))
	}
	if plan[0].Agent != "wifi_agent" || plan[0].Action != "toggle" || plan[0].Risk != intent.RiskLow {
		t.Fatalf("unexpected first task %+v", plan[0])
	}
	if plan[0].Args["text"] != "turn wifi off" {
		t.Fatalf("text not forwarded: %+v", plan[0].Args)
	}
	if plan[1].Agent != "network_agent" || plan[1].Action != "status" || plan[1].Risk != intent.RiskMedium {
		t.Fatalf("unexpected second task %+v", plan[1])
	}
}

func TestOpenAndSearchDefaults(t *testing.T) {
	t.Parallel()

	p := New()
	plan := p.Plan(intent.Intent{Name: "open_and_search", Text: "golang generics"})
	if plan[0].Args["app"] != "browser" || plan[1].Args["q"] != "golang generics" {
		t.Fatalf("defaults not applied: %+v", plan)
	}

	plan = p.Plan(intent.Intent{
		Name:     "open_and_search",
		Text:     "open firefox and search go",
		Entities: map[string]any{"app": "firefox", "query": "go"},
	})
	if plan[0].Args["app"] != "firefox" || plan[1].Args["q"] != "go" {
		t.Fatalf("entities not used: %+v", plan)
	}
}

func TestSingleStepTable(t *testing.T) {
	t.Parallel()

	cases := map[string]intent.Task{
		"shutdown_system": {Agent: "power_agent", Action: "shutdown", Risk: intent.RiskHigh},
		"reboot_system":   {Agent: "power_agent", Action: "reboot", Risk: intent.RiskHigh},
		"open_app":        {Agent: "app_agent", Action: "open", Risk: intent.RiskLow},
		"play_music":      {Agent: "music_agent", Action: "play", Risk: intent.RiskLow},
	}
	p := New()
	for name, want := range cases {
		in := intent.Intent{Name: name, Text: "x", Entities: map[string]any{"app": "term"}}
		plan := p.Plan(in)
		if len(plan) != 1 {
			t.Fatalf("%s: expected one task, got %d", name, len(plan))
		}
		got := plan[0]
		if got.Agent != want.Agent || got.Action != want.Action || got.Risk != want.Risk {
			t.Fatalf("%s: unexpected task %+v", name, got)
		}
		if !reflect.DeepEqual(got.Args["entities"], map[string]any{"app": "term"}) || got.Args["text"] != "x" {
			t.Fatalf("%s: unexpected args %+v", name, got.Args)
		}
	}
}

func TestUnknownIntentYieldsEmptyPlan(t *testing.T) {
	t.Parallel()

	if plan := New().Plan(intent.Intent{Name: "make_coffee"}); len(plan) != 0 {
		t.Fatalf("expected empty plan, got %+v", plan)
	}
}

func TestWithMappingExtendsTable(t *testing.T) {
	t.Parallel()

	p := New(WithMapping("check_ledger", "chain_agent", "status", intent.RiskLow))
	plan := p.Plan(intent.Intent{Name: "check_ledger"})
	if len(plan) != 1 || plan[0].Agent != "chain_agent" {
		t.Fatalf("custom mapping not used: %+v", plan)
	}
	if !reflect.DeepEqual(p.Plan(intent.Intent{Name: "check_ledger"}), plan) {
		t.Fatalf("plan should be deterministic")
	}
}
