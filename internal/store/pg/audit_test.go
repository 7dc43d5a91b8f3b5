package pg

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"artreg.org/internal/audit"
)

func newMockAuditStore(t *testing.T) (*AuditStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewAuditStore(db), mock
}

func TestAuditAppend(t *testing.T) {
	store, mock := newMockAuditStore(t)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into audit_log").
		WithArgs("ev-1", ts, "artifact.create", "alice", "art-1", "model", true, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Append(context.Background(), &audit.Event{
		ID:           "ev-1",
		Timestamp:    ts,
		Action:       audit.ActionArtifactCreate,
		SubjectID:    "alice",
		ResourceID:   "art-1",
		ResourceType: "model",
		Success:      true,
		Metadata:     map[string]string{"role": "uploader"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAuditQueryAppliesFilters(t *testing.T) {
	store, mock := newMockAuditStore(t)

	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "occurred_at", "action", "subject_id", "resource_id", "resource_type", "success", "metadata",
	}).AddRow("ev-2", ts, "artifact.delete", "bob", "art-1", "model", true, []byte(`{"k":"v"}`))

	mock.ExpectQuery(`from audit_log where occurred_at >= \$1 and subject_id = \$2 order by occurred_at desc, id desc limit \$3`).
		WithArgs(ts.Add(-time.Hour), "bob", 100).
		WillReturnRows(rows)

	events, err := store.Query(context.Background(), audit.Filter{
		Start:     ts.Add(-time.Hour),
		SubjectID: "bob",
		Limit:     100,
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	e := events[0]
	if e.Action != audit.ActionArtifactDelete || e.SubjectID != "bob" || e.Metadata["k"] != "v" {
		t.Fatalf("unexpected event: %+v", e)
	}
}

func TestAuditQueryNoFilters(t *testing.T) {
	store, mock := newMockAuditStore(t)

	mock.ExpectQuery(`from audit_log where true order by occurred_at desc, id desc limit \$1`).
		WithArgs(1000).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "occurred_at", "action", "subject_id", "resource_id", "resource_type", "success", "metadata",
		}))

	events, err := store.Query(context.Background(), audit.Filter{Limit: 1000})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
