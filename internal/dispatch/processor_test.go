package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"Jarvis-Orchestrator/internal/agent"
	"Jarvis-Orchestrator/internal/approval"
	"Jarvis-Orchestrator/internal/confirm"
	xerrors "Jarvis-Orchestrator/internal/errors"
	"Jarvis-Orchestrator/internal/execution"
	"Jarvis-Orchestrator/internal/intent"
	"Jarvis-Orchestrator/internal/pipeline"
	"Jarvis-Orchestrator/internal/router"
)

type fakeRunner struct {
	mu      sync.Mutex
	prompts [][]string
	handle  func(p confirm.Prompter) pipeline.Result
	outcome agent.Outcome
}

func (f *fakeRunner) Handle(ctx context.Context, _ intent.Intent, _ intent.Conditions, p confirm.Prompter) pipeline.Result {
	var answers []string
	if p != nil {
		for {
			answer, err := p.Prompt(ctx, "?")
			if err != nil {
				break
			}
			answers = append(answers, answer)
		}
	}
	f.mu.Lock()
	f.prompts = append(f.prompts, answers)
	f.mu.Unlock()
	return f.handle(p)
}

func (f *fakeRunner) Delegate(context.Context, intent.Intent) pipeline.Result {
	if !f.outcome.OK {
		out := f.outcome
		return pipeline.Result{Status: pipeline.StatusError, Reason: out.Message, Outcome: &out}
	}
	out := f.outcome
	return pipeline.Result{Status: pipeline.StatusDelegated, Outcome: &out}
}

func gatedRunner() *fakeRunner {
	decision := router.Decision{
		Kind:         router.KindRequireConfirmation,
		Confirmation: &router.ConfirmationRequest{Intent: "shutdown", Confidence: 0.9},
	}
	return &fakeRunner{handle: func(p confirm.Prompter) pipeline.Result {
		if p == nil {
			return pipeline.Result{Status: pipeline.StatusAwaitingConfirmation, Decision: &decision, Confirmation: decision.Confirmation}
		}
		return pipeline.Result{Status: pipeline.StatusConfirmed, Results: []execution.TaskResult{{Success: true}}}
	}}
}

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestProcessorAwaitsThenResumesWithAnswer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	runner := gatedRunner()
	service := NewService(store, queue)
	processor := NewProcessor(runner, store, queue)

	req, err := service.Submit(ctx, Submission{Intent: intent.Intent{Name: "shutdown", Confidence: 0.9}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := processor.Process(ctx, <-queue.ch); err != nil {
		t.Fatalf("process: %v", err)
	}
	got, _ := service.Get(ctx, req.ID)
	if got.Status != StatusAwaitingConfirmation {
		t.Fatalf("expected awaiting_confirmation, got %s", got.Status)
	}
	if got.Decision == nil || got.Decision.Confirmation == nil || got.Decision.Confirmation.Intent != "shutdown" {
		t.Fatalf("decision not stored: %+v", got.Decision)
	}

	if _, err := service.Confirm(ctx, req.ID, true, 3); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := processor.Process(ctx, <-queue.ch); err != nil {
		t.Fatalf("process confirmed: %v", err)
	}
	got, _ = service.Get(ctx, req.ID)
	if got.Status != StatusSucceeded {
		t.Fatalf("expected succeeded, got %s (%s)", got.Status, got.Error)
	}
	if got.Decision == nil {
		t.Fatalf("earlier decision should be kept")
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.prompts) != 2 {
		t.Fatalf("expected two pipeline runs, got %d", len(runner.prompts))
	}
	if answers := runner.prompts[1]; len(answers) != 2 || answers[0] != "y" || answers[1] != "3" {
		t.Fatalf("unexpected scripted answers: %v", answers)
	}
}

func TestProcessorDeniedAnswer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	runner := gatedRunner()
	runner.handle = func(p confirm.Prompter) pipeline.Result {
		if p == nil {
			return pipeline.Result{Status: pipeline.StatusAwaitingConfirmation}
		}
		return pipeline.Result{Status: pipeline.StatusDenied}
	}
	service := NewService(store, queue)
	processor := NewProcessor(runner, store, queue)

	req, _ := service.Submit(ctx, Submission{Intent: intent.Intent{Name: "shutdown"}})
	_ = processor.Process(ctx, <-queue.ch)
	if _, err := service.Confirm(ctx, req.ID, false, 0); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	_ = processor.Process(ctx, <-queue.ch)

	got, _ := service.Get(ctx, req.ID)
	if got.Status != StatusDenied {
		t.Fatalf("expected denied, got %s", got.Status)
	}
	if answers := runner.prompts[1]; len(answers) != 1 || answers[0] != "n" {
		t.Fatalf("denial should send a single 'n', got %v", answers)
	}
	if _, err := service.Confirm(ctx, req.ID, true, 0); !errors.Is(err, ErrRequestCompleted) {
		t.Fatalf("confirming a finished request should fail, got %v", err)
	}
}

func TestProcessorMapsFailures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		result pipeline.Result
		status Status
		code   xerrors.Code
	}{
		{
			name:   "policy denial",
			result: pipeline.Result{Status: pipeline.StatusExecuted, Results: []execution.TaskResult{{Success: false, Error: "policy_denied", Reason: "battery_too_low"}}},
			status: StatusFailed,
			code:   xerrors.CodePolicyDenied,
		},
		{
			name:   "provider fault",
			result: pipeline.Result{Status: pipeline.StatusExecuted, Results: []execution.TaskResult{{Success: true}, {Success: false, Error: "radio jammed"}}},
			status: StatusFailed,
			code:   xerrors.CodeProviderFault,
		},
		{
			name:   "input failure",
			result: pipeline.Result{Status: pipeline.StatusError, Reason: "input_failed"},
			status: StatusFailed,
			code:   xerrors.CodeInputFailure,
		},
		{
			name:   "no plan",
			result: pipeline.Result{Status: pipeline.StatusNoPlan, Reason: "UnknownIntent"},
			status: StatusNoPlan,
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := completionOf(tc.result)
			if c.Status != tc.status {
				t.Fatalf("expected %s, got %s", tc.status, c.Status)
			}
			if c.ErrorCode != string(tc.code) {
				t.Fatalf("expected code %q, got %q", tc.code, c.ErrorCode)
			}
		})
	}
}

func TestProcessorDelegateMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	runner := &fakeRunner{outcome: agent.Fail("agent_not_found")}
	service := NewService(store, queue)
	processor := NewProcessor(runner, store, queue)

	req, err := service.Submit(ctx, Submission{Mode: ModeDelegate, Intent: intent.Intent{Agent: "ghost_agent"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	_ = processor.Process(ctx, <-queue.ch)

	got, _ := service.Get(ctx, req.ID)
	if got.Status != StatusFailed || got.ErrorCode != string(xerrors.CodeAgentNotFound) {
		t.Fatalf("unexpected delegate result: %s %s", got.Status, got.ErrorCode)
	}
	if got.Outcome == nil || got.Outcome.Message != "agent_not_found" {
		t.Fatalf("outcome not stored: %+v", got.Outcome)
	}
	if len(runner.prompts) != 0 {
		t.Fatalf("delegate mode must not run the plan pipeline")
	}
}

func TestServiceSubmitValidationAndIdempotency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue)

	if _, err := service.Submit(ctx, Submission{}); xerrors.CodeOf(err) != CodeRequestValidation {
		t.Fatalf("empty intent should be rejected, got %v", err)
	}
	if _, err := service.Submit(ctx, Submission{Mode: ModeDelegate}); xerrors.CodeOf(err) != CodeRequestValidation {
		t.Fatalf("delegate without intent or agent should be rejected, got %v", err)
	}
	if _, err := service.Submit(ctx, Submission{Mode: "batch", Intent: intent.Intent{Name: "x"}}); xerrors.CodeOf(err) != CodeRequestValidation {
		t.Fatalf("unknown mode should be rejected, got %v", err)
	}

	first, err := service.Submit(ctx, Submission{ID: "client-1", Intent: intent.Intent{Name: "manage_wifi"}})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if first.Mode != ModePlan || first.Status != StatusPending {
		t.Fatalf("unexpected record: %+v", first)
	}
	second, err := service.Submit(ctx, Submission{ID: "client-1", Intent: intent.Intent{Name: "other"}})
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if second.Intent.Name != "manage_wifi" {
		t.Fatalf("resubmission should return the original record, got %s", second.Intent.Name)
	}
	if len(queue.ch) != 1 {
		t.Fatalf("resubmission must not publish again, queue has %d", len(queue.ch))
	}

	if _, err := service.Confirm(ctx, "client-1", true, 0); !errors.Is(err, ErrRequestConflict) {
		t.Fatalf("pending request cannot be confirmed, got %v", err)
	}
	if _, err := service.Confirm(ctx, "client-1", true, -1); xerrors.CodeOf(err) != CodeRequestValidation {
		t.Fatalf("negative hours should be rejected, got %v", err)
	}
}

func TestServiceSubmitPublishFailureMarksFailed(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewMemoryStore()
	service := NewService(store, failingProducer{})

	_, err := service.Submit(ctx, Submission{ID: "r1", Intent: intent.Intent{Name: "shutdown"}})
	if xerrors.CodeOf(err) != CodeRequestPublish {
		t.Fatalf("expected publish error, got %v", err)
	}
	got, _ := store.Get(ctx, "r1")
	if got.Status != StatusFailed || got.ErrorCode != string(CodeRequestPublish) {
		t.Fatalf("request should be failed after publish error: %+v", got)
	}
}

func TestProcessorStartConsumesQueue(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store := NewMemoryStore()
	queue := NewMemoryQueue(64)
	runner := &fakeRunner{handle: func(confirm.Prompter) pipeline.Result {
		return pipeline.Result{Status: pipeline.StatusExecuted, Results: []execution.TaskResult{{Success: true}}}
	}}
	service := NewService(store, queue)
	processor := NewProcessor(runner, store, queue, WithWorkerCount(4))

	done := make(chan error, 1)
	go func() { done <- processor.Start(ctx) }()

	var submitted []string
	for i := 0; i < 20; i++ {
		req, err := service.Submit(ctx, Submission{Intent: intent.Intent{Name: "manage_wifi"}})
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		submitted = append(submitted, req.ID)
	}
	for _, id := range submitted {
		got, err := service.WaitUntilSettled(ctx, id, 10*time.Millisecond)
		if err != nil {
			t.Fatalf("wait %s: %v", id, err)
		}
		if got.Status != StatusSucceeded {
			t.Fatalf("request %s ended as %s", id, got.Status)
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("processor exited with %v", err)
	}
}

func TestServiceConfirmRejectsOutOfRangeHours(t *testing.T) {
	t.Parallel()

	service := NewService(NewMemoryStore(), NewMemoryQueue(1))
	for _, hours := range []int{-1, int(approval.MaxHours) + 1} {
		if _, err := service.Confirm(context.Background(), "any", true, hours); xerrors.CodeOf(err) != CodeRequestValidation {
			t.Fatalf("hours %d: expected validation error, got %v", hours, err)
		}
	}
}
