package dispatch

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"Jarvis-Orchestrator/internal/intent"
)

var requestColumns = []string{
	"id", "mode", "intent", "conditions", "status", "decision", "reason", "results",
	"outcome", "confirmation", "last_error", "error_code", "created_at", "updated_at",
}

func newMockStore(t *testing.T) (*MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	store, err := NewMySQLStore(db)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	return store, mock
}

func TestMySQLStoreCreateMapsDuplicateKey(t *testing.T) {
	store, mock := newMockStore(t)
	insert := regexp.QuoteMeta(`INSERT INTO intent_requests`)

	mock.ExpectExec(insert).
		WithArgs("r1", "plan", `{"intent":"shutdown","confidence":0.9}`, `{}`, "pending", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'r1'"})
	mock.ExpectClose()

	req := &Request{ID: "r1", Mode: ModePlan, Intent: intent.Intent{Name: "shutdown", Confidence: 0.9}, Status: StatusPending}
	if err := store.Create(context.Background(), req); err != nil {
		t.Fatalf("create: %v", err)
	}
	if req.CreatedAt == 0 {
		t.Fatalf("created_at should be stamped")
	}
	if err := store.Create(context.Background(), req); !errors.Is(err, ErrRequestConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLStoreClaimTerminalRequest(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE intent_requests SET status = ?, last_error = ''`)).
		WithArgs("running", sqlmock.AnyArg(), "r1", "pending", "awaiting_confirmation").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM intent_requests WHERE id = ?`)).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow(
			"r1", "plan", `{"intent":"manage_wifi","confidence":0.95}`, `{"battery":0.5}`, "succeeded",
			`{"kind":"ok","tasks":[{"agent":"wifi_agent","action":"toggle","args":{},"agent_risk":"low"}]}`,
			"", `[{"success":true,"result":{"status":"on"}}]`, nil, nil, "", "", int64(100), int64(120),
		))

	req, err := store.Claim(context.Background(), "r1")
	if !errors.Is(err, ErrRequestCompleted) {
		t.Fatalf("expected completed error, got %v", err)
	}
	if req.Status != StatusSucceeded || req.Intent.Name != "manage_wifi" {
		t.Fatalf("unexpected record: %+v", req)
	}
	if req.Conditions.Battery == nil || *req.Conditions.Battery != 0.5 {
		t.Fatalf("conditions not decoded: %+v", req.Conditions)
	}
	if req.Decision == nil || len(req.Decision.Tasks) != 1 || req.Decision.Tasks[0].Agent != "wifi_agent" {
		t.Fatalf("decision not decoded: %+v", req.Decision)
	}
	if len(req.Results) != 1 || req.Results[0].Result["status"] != "on" {
		t.Fatalf("results not decoded: %+v", req.Results)
	}
	if req.Outcome != nil || req.Confirmation != nil {
		t.Fatalf("null columns should stay nil")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLStoreGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM intent_requests WHERE id = ?`)).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(requestColumns))

	if _, err := store.Get(context.Background(), "missing"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLStoreListBuildsFilter(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta(`FROM intent_requests WHERE status IN (?,?) AND mode = ? ORDER BY updated_at DESC, created_at DESC, id DESC LIMIT ? OFFSET ?`)).
		WithArgs("pending", "awaiting_confirmation", "plan", 20, 0).
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow(
			"r2", "plan", `{"intent":"shutdown","confidence":0.6}`, `{}`, "awaiting_confirmation",
			`{"kind":"require_confirmation","confirmation":{"intent":"shutdown","confidence":0.6}}`,
			"", nil, nil, `{"approve":true,"remember_hours":1}`, "", "", int64(5), int64(6),
		))

	list, err := store.List(context.Background(), buildListOptions([]ListOption{
		WithStatuses(StatusPending, StatusAwaitingConfirmation),
		WithMode(ModePlan),
	}))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Confirmation == nil || !list[0].Confirmation.Approve {
		t.Fatalf("unexpected list: %+v", list)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLStoreCompleteMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE intent_requests SET status = ?, reason = ?`)).
		WithArgs("no_plan", "UnknownIntent", nil, nil, nil, "", "", sqlmock.AnyArg(), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Complete(context.Background(), "ghost", Completion{Status: StatusNoPlan, Reason: "UnknownIntent"})
	if !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMySQLStoreStatsAppendsFilterArgs(t *testing.T) {
	store, mock := newMockStore(t)

	columns := []string{"total", "pending", "running", "awaiting", "succeeded", "denied", "no_plan", "failed", "oldest", "newest"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM intent_requests WHERE status IN (?,?) AND mode = ?`)).
		WithArgs("pending", "running", "awaiting_confirmation", "succeeded", "denied", "no_plan", "failed", "succeeded", "failed", "plan").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(3, 0, 0, 0, 2, 0, 0, 1, 1700000000, 1700000100))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM intent_requests`)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow(0, 0, 0, 0, 0, 0, 0, 0, 0, 0))

	stats, err := store.Stats(context.Background(), ListOptions{
		Statuses: []Status{StatusSucceeded, StatusFailed},
		Mode:     ModePlan,
	})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Succeeded != 2 || stats.Failed != 1 || stats.NewestUpdatedAt != 1700000100 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	empty, err := store.Stats(context.Background(), ListOptions{})
	if err != nil {
		t.Fatalf("empty stats: %v", err)
	}
	if empty.Total != 0 || empty.OldestUpdatedAt != 0 {
		t.Fatalf("unexpected empty stats %+v", empty)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
