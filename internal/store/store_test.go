package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/SaibSameer/icmp-sub000/internal/db"
	"github.com/SaibSameer/icmp-sub000/pkg/logging"
)

// mockPool adapts a pgxmock pool to the db.Pool acquisition surface so the
// repositories run against scripted expectations.
type mockPool struct {
	mock pgxmock.PgxPoolIface
}

func (p *mockPool) Acquire(ctx context.Context) (db.Conn, error) {
	return &mockConn{PgxPoolIface: p.mock}, nil
}

type mockConn struct {
	pgxmock.PgxPoolIface
}

func (c *mockConn) Release() {}

// Ping satisfies the health-check-on-acquire in db.Manager; pgxmock would
// otherwise reject the unscripted call before any test expectation runs.
func (c *mockConn) Ping(ctx context.Context) error { return nil }

func newTestManager(t *testing.T) (*db.Manager, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool() error = %v", err)
	}
	t.Cleanup(mock.Close)
	manager := db.NewManager(&mockPool{mock: mock}, logging.NewWithWriter("error", io.Discard), db.WithMaxRetries(0))
	return manager, mock
}

func testTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
}

func TestConversationGet(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewConversationRepository(manager)

	rows := pgxmock.NewRows([]string{"id", "business_id", "user_id", "current_stage_id", "created_at", "last_updated"}).
		AddRow("conv-1", "biz-1", "user-1", pgtype.Text{String: "stage-1", Valid: true}, testTime(t), testTime(t))
	mock.ExpectQuery("SELECT id, business_id, user_id, current_stage_id, created_at, last_updated").
		WithArgs("conv-1").
		WillReturnRows(rows)

	conv, err := repo.Get(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if conv.CurrentStageID != "stage-1" {
		t.Errorf("CurrentStageID = %q, want stage-1", conv.CurrentStageID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConversationGetNotFound(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewConversationRepository(manager)

	mock.ExpectQuery("SELECT id, business_id, user_id, current_stage_id, created_at, last_updated").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "business_id", "user_id", "current_stage_id", "created_at", "last_updated"}))

	_, err := repo.Get(context.Background(), "missing")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("Get() error = %v, want ErrConversationNotFound", err)
	}
}

func TestConversationCreate(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewConversationRepository(manager)

	mock.ExpectQuery("INSERT INTO conversations").
		WithArgs(pgxmock.AnyArg(), "biz-1", "user-1", "stage-1").
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(testTime(t)))

	conv, err := repo.Create(context.Background(), "biz-1", "user-1", "stage-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if conv.ID == "" {
		t.Error("Create() should mint an id")
	}
	if conv.CurrentStageID != "stage-1" {
		t.Errorf("CurrentStageID = %q, want stage-1", conv.CurrentStageID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestConversationUpdateStageNotFound(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewConversationRepository(manager)

	mock.ExpectExec("UPDATE conversations").
		WithArgs("missing", "stage-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.UpdateStage(context.Background(), "missing", "stage-2")
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("UpdateStage() error = %v, want ErrConversationNotFound", err)
	}
}

func TestStageExtractionRules(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewStageRepository(manager)

	rows := pgxmock.NewRows([]string{"method", "field", "params"}).
		AddRow("regex", "", []byte(`{"pattern":"(\\w+)@(\\w+)","group_1_field":"user","group_2_field":"domain"}`)).
		AddRow("keyword", "service", []byte(`{"keywords":["botox","filler"]}`))
	mock.ExpectQuery("SELECT method, field, params").
		WithArgs("stage-1").
		WillReturnRows(rows)

	rules, err := repo.ExtractionRules(context.Background(), "stage-1")
	if err != nil {
		t.Fatalf("ExtractionRules() error = %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}
	if rules[0].GroupFields[2] != "domain" {
		t.Errorf("GroupFields = %v", rules[0].GroupFields)
	}
	if len(rules[1].Keywords) != 2 {
		t.Errorf("Keywords = %v", rules[1].Keywords)
	}
}

func TestProcessLogLifecycle(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewProcessLogRepository(manager)

	mock.ExpectExec("INSERT INTO process_logs").
		WithArgs(pgxmock.AnyArg(), "biz-1", nil, ProcessStarted).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := repo.Start(context.Background(), "biz-1", "")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if id == "" {
		t.Fatal("Start() should mint an id")
	}

	mock.ExpectExec("UPDATE process_logs").
		WithArgs(id, ProcessCompleted, "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	if err := repo.Finish(context.Background(), id, ProcessCompleted, ""); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestProcessLogFinishNotFound(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewProcessLogRepository(manager)

	mock.ExpectExec("UPDATE process_logs").
		WithArgs("missing", ProcessError, "boom").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.Finish(context.Background(), "missing", ProcessError, "boom")
	if !errors.Is(err, ErrProcessLogNotFound) {
		t.Fatalf("Finish() error = %v, want ErrProcessLogNotFound", err)
	}
}

func TestLLMCallInsert(t *testing.T) {
	manager, mock := newTestManager(t)
	repo := NewLLMCallRepository(manager)

	mock.ExpectExec("INSERT INTO llm_calls").
		WithArgs("call-1", "biz-1", "conv-1", "intent", "classify this", "system", "booking", 12, 3).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Insert(context.Background(), &LLMCall{
		ID:             "call-1",
		BusinessID:     "biz-1",
		ConversationID: "conv-1",
		CallType:       "intent",
		InputText:      "classify this",
		SystemPrompt:   "system",
		ResponseText:   "booking",
		InputTokens:    12,
		OutputTokens:   3,
	})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
