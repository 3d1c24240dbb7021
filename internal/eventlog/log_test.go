package eventlog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	xerrors "Jarvis-Orchestrator/internal/errors"
)

func openTestLog(t *testing.T, opts ...Option) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "logs", "events.jsonl"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestAppendThenReadRoundTrip(t *testing.T) {
	t.Parallel()

	fixed := time.Unix(1700000000, 500000000)
	l := openTestLog(t, WithClock(func() time.Time { return fixed }), WithIDGenerator(func() string { return "id-1" }))

	event := Event{"type": "task.start", "agent": "wifi_agent", "attempt": 1.0}
	env, err := l.Append(context.Background(), event)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if env.ID != "id-1" || env.Version != SchemaVersion || env.Timestamp != 1700000000.5 {
		t.Fatalf("unexpected envelope %+v", env)
	}

	all, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one envelope, got %d", len(all))
	}
	if !reflect.DeepEqual(all[0].Event, event) {
		t.Fatalf("event mismatch: %+v vs %+v", all[0].Event, event)
	}
	if !all[0].Time().Equal(fixed) {
		t.Fatalf("timestamp did not round trip: %v", all[0].Time())
	}
}

func TestAppendRejectsEventsWithoutType(t *testing.T) {
	t.Parallel()

	l := openTestLog(t)
	for _, ev := range []Event{nil, {"agent": "x"}, {"type": 3}, {"type": ""}} {
		_, err := l.Append(context.Background(), ev)
		if xerrors.CodeOf(err) != xerrors.CodeValidationFault {
			t.Fatalf("expected validation fault for %v, got %v", ev, err)
		}
	}
	all, _ := l.ReadAll()
	if len(all) != 0 {
		t.Fatalf("invalid events must not be written, found %d", len(all))
	}
}

func TestReadersSkipMalformedLines(t *testing.T) {
	t.Parallel()

	l := openTestLog(t)
	ctx := context.Background()
	if _, err := l.Append(ctx, Event{"type": "a"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.WriteString("not json\n\n{\"id\":\"x\",\"event\":null}\n")
	_ = f.Close()

	if _, err := l.Append(ctx, Event{"type": "b"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	// torn trailing line without newline
	f, _ = os.OpenFile(l.Path(), os.O_APPEND|os.O_WRONLY, 0o644)
	_, _ = f.WriteString(`{"id":"torn","timestamp":1,"ver`)
	_ = f.Close()

	all, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(all) != 2 || all[0].Event.Type() != "a" || all[1].Event.Type() != "b" {
		t.Fatalf("unexpected envelopes %+v", all)
	}
}

func TestTailReturnsLastEnvelopesInOrder(t *testing.T) {
	t.Parallel()

	l := openTestLog(t)
	for i := 0; i < 7; i++ {
		if _, err := l.Append(context.Background(), Event{"type": fmt.Sprintf("e%d", i)}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	tail, err := l.Tail(3)
	if err != nil {
		t.Fatalf("tail: %v", err)
	}
	got := []string{tail[0].Event.Type(), tail[1].Event.Type(), tail[2].Event.Type()}
	if !reflect.DeepEqual(got, []string{"e4", "e5", "e6"}) {
		t.Fatalf("unexpected tail %v", got)
	}

	all, _ := l.Tail(50)
	if len(all) != 7 || all[0].Event.Type() != "e0" {
		t.Fatalf("tail larger than log should return everything in order, got %d", len(all))
	}
	if none, _ := l.Tail(0); len(none) != 0 {
		t.Fatalf("tail(0) should be empty")
	}
}

func TestReadMissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	var count int
	err := ReadFile(filepath.Join(t.TempDir(), "absent.jsonl"), func(Envelope) error {
		count++
		return nil
	})
	if err != nil || count != 0 {
		t.Fatalf("expected empty read, got %d, %v", count, err)
	}
}

func TestBatchedDurabilitySyncsEveryNAndOnClose(t *testing.T) {
	t.Parallel()

	l := openTestLog(t, WithDurability(SyncBatched(3)))
	syncs := 0
	l.syncFn = func(*os.File) error {
		syncs++
		return nil
	}

	for i := 0; i < 4; i++ {
		if _, err := l.Append(context.Background(), Event{"type": "x"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if syncs != 1 {
		t.Fatalf("expected one sync after three appends, got %d", syncs)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if syncs != 2 {
		t.Fatalf("close should sync the pending append, got %d syncs", syncs)
	}
	if _, err := l.Append(context.Background(), Event{"type": "late"}); err == nil {
		t.Fatalf("append after close should fail")
	}
}

func TestSyncFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	l := openTestLog(t)
	l.syncFn = func(*os.File) error { return errors.New("fsync unsupported") }

	if _, err := l.Append(context.Background(), Event{"type": "x"}); err != nil {
		t.Fatalf("fsync failure must not surface: %v", err)
	}
	all, _ := l.ReadAll()
	if len(all) != 1 {
		t.Fatalf("event should still be written")
	}
}

func TestParseDurability(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurability("", 0); err != nil || d.BatchSize() != 1 {
		t.Fatalf("default should be sync, got %v %v", d, err)
	}
	if d, err := ParseDurability("batched", 16); err != nil || d.BatchSize() != 16 {
		t.Fatalf("unexpected batched durability %v %v", d, err)
	}
	if _, err := ParseDurability("batched", 1); err == nil {
		t.Fatalf("batch size 1 should be rejected")
	}
	if _, err := ParseDurability("sometimes", 0); err == nil {
		t.Fatalf("unknown mode should be rejected")
	}
}
