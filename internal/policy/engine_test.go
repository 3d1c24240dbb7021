package policy

import (
	"testing"

	"Jarvis-Orchestrator/internal/intent"
)

func TestTimeWindowBlocksInsideDefaultHours(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	task := intent.Task{Agent: "app_agent", Action: "open", Risk: intent.RiskLow}

	d := e.Evaluate(task, intent.Conditions{}.WithHour(3))
	if d.Allowed || d.Reason != "action restricted during hours 2-4" {
		t.Fatalf("hour 3 should be blocked, got %+v", d)
	}
	if d := e.Evaluate(task, intent.Conditions{}.WithHour(6)); !d.Allowed || d.Reason != "ok" {
		t.Fatalf("hour 6 should pass, got %+v", d)
	}
	if d := e.Evaluate(task, intent.Conditions{}.WithHour(4)); !d.Allowed {
		t.Fatalf("window end is exclusive, got %+v", d)
	}
	if d := e.Evaluate(task, intent.Conditions{}); !d.Allowed {
		t.Fatalf("missing hour should pass, got %+v", d)
	}
}

func TestWrappedWindowNeverMatches(t *testing.T) {
	t.Parallel()

	e := NewEngine(WithBlockedHours(22, 6))
	task := intent.Task{Agent: "app_agent", Action: "open"}
	for _, h := range []int{0, 3, 22, 23} {
		if d := e.Evaluate(task, intent.Conditions{}.WithHour(h)); !d.Allowed {
			t.Fatalf("hour %d unexpectedly blocked: %+v", h, d)
		}
	}
}

func TestBatteryRuleGuardsPowerActions(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	shutdown := intent.Task{Agent: "power_agent", Action: "shutdown", Risk: intent.RiskHigh}
	low := intent.Conditions{}.WithBattery(0.02)

	if d := e.Evaluate(shutdown, low); d.Allowed || d.Reason != ReasonBatteryTooLow {
		t.Fatalf("expected battery denial, got %+v", d)
	}
	if d := e.Evaluate(shutdown, low.Confirmed()); !d.Allowed {
		t.Fatalf("confirmation should lift the battery guard, got %+v", d)
	}
	open := intent.Task{Agent: "app_agent", Action: "open"}
	if d := e.Evaluate(open, low); !d.Allowed {
		t.Fatalf("non power task must ignore battery, got %+v", d)
	}

	custom := NewEngine(WithPowerActions("system_agent", "shutdown"))
	sys := intent.Task{Agent: "system_agent", Action: "shutdown"}
	if d := custom.Evaluate(sys, low); d.Allowed {
		t.Fatalf("configured power action should be guarded, got %+v", d)
	}
}

func TestConfidenceRuleUsesEffectiveRisk(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	task := intent.Task{Agent: "app_agent", Action: "open", Risk: intent.RiskLow}
	unsure := intent.Conditions{}.WithUserConfidence(0.5)

	if d := e.Evaluate(task, unsure); !d.Allowed {
		t.Fatalf("low risk task should pass, got %+v", d)
	}
	if d := e.Evaluate(task, unsure.WithAgentRisk(intent.RiskHigh)); d.Allowed || d.Reason != ReasonLowConfidence {
		t.Fatalf("agent risk override should apply, got %+v", d)
	}
	high := intent.Task{Agent: "power_agent", Action: "reboot", Risk: intent.RiskHigh}
	if d := e.Evaluate(high, intent.Conditions{}); !d.Allowed {
		t.Fatalf("default confidence is 1.0, got %+v", d)
	}
	if d := e.Evaluate(high, unsure.WithAgentRisk(intent.RiskLow)); !d.Allowed {
		t.Fatalf("explicit low agent risk should win over task risk, got %+v", d)
	}
	if d := e.Evaluate(high, unsure.Confirmed()); !d.Allowed {
		t.Fatalf("confirmation should lift the confidence guard, got %+v", d)
	}
}

func TestFirstFailingRuleWins(t *testing.T) {
	t.Parallel()

	e := NewEngine()
	task := intent.Task{Agent: "power_agent", Action: "shutdown", Risk: intent.RiskHigh}
	cond := intent.Conditions{}.WithHour(3).WithBattery(0.01).WithUserConfidence(0.1)

	d := e.Evaluate(task, cond)
	if d.Rule != "time_window" {
		t.Fatalf("expected time window to win, got %+v", d)
	}
}

type denyAll struct{}

func (denyAll) Name() string { return "deny_all" }

func (denyAll) Check(intent.Task, intent.Conditions) (bool, string) { return false, "nope" }

func TestExtraRulesRunAfterBuiltins(t *testing.T) {
	t.Parallel()

	e := NewEngine(WithRule(denyAll{}))
	d := e.Evaluate(intent.Task{Agent: "a", Action: "b"}, intent.Conditions{})
	if d.Allowed || d.Reason != "nope" {
		t.Fatalf("extra rule not applied: %+v", d)
	}
	if got := len(e.Rules()); got != 4 {
		t.Fatalf("expected 4 rules, got %d", got)
	}
}
