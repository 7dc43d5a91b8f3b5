package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecordAppendsOneEventPerCall(t *testing.T) {
	store := NewInMemory()
	rec := NewRecorder(store)

	rec.Record(context.Background(), ActionArtifactCreate, "alice", "art-1", "model", true, nil)
	rec.Record(context.Background(), ActionArtifactCreate, "alice", "art-2", "model", false,
		map[string]string{"error": "invalid_input"})

	if store.Len() != 2 {
		t.Fatalf("expected 2 events, got %d", store.Len())
	}

	events, err := rec.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events back, got %d", len(events))
	}
	// Newest first.
	if events[0].ResourceID != "art-2" || events[1].ResourceID != "art-1" {
		t.Fatalf("events not newest-first: %s, %s", events[0].ResourceID, events[1].ResourceID)
	}
	if events[0].Success {
		t.Fatalf("failure outcome not preserved")
	}
	if events[0].Metadata["error"] != "invalid_input" {
		t.Fatalf("metadata not preserved: %v", events[0].Metadata)
	}
	if events[0].ID == "" || events[0].Timestamp.IsZero() {
		t.Fatalf("event id and timestamp must be populated")
	}
}

func TestQueryFilters(t *testing.T) {
	store := NewInMemory()
	rec := NewRecorder(store)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := base
	rec.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	rec.Record(context.Background(), ActionArtifactCreate, "alice", "a1", "model", true, nil)
	rec.Record(context.Background(), ActionArtifactDelete, "bob", "a1", "model", true, nil)
	rec.Record(context.Background(), ActionArtifactSearch, "alice", "", "pattern", false, nil)

	bySubject, err := rec.Query(context.Background(), Filter{SubjectID: "alice"})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(bySubject) != 2 {
		t.Fatalf("expected 2 events for alice, got %d", len(bySubject))
	}

	byAction, err := rec.Query(context.Background(), Filter{Action: ActionArtifactDelete})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(byAction) != 1 || byAction[0].SubjectID != "bob" {
		t.Fatalf("action filter wrong: %+v", byAction)
	}

	windowed, err := rec.Query(context.Background(), Filter{
		Start: base.Add(1500 * time.Millisecond),
		End:   base.Add(2500 * time.Millisecond),
	})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(windowed) != 1 || windowed[0].Action != ActionArtifactDelete {
		t.Fatalf("time window filter wrong: %+v", windowed)
	}
}

func TestQueryLimitDefaultsAndCaps(t *testing.T) {
	store := NewInMemory()
	rec := NewRecorder(store)

	for i := 0; i < 1200; i++ {
		rec.Record(context.Background(), ActionArtifactDownload, "alice", "a", "model", true, nil)
	}

	events, err := rec.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1000 {
		t.Fatalf("expected default limit 1000, got %d", len(events))
	}

	events, err = rec.Query(context.Background(), Filter{Limit: 10})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 10 {
		t.Fatalf("expected 10 events, got %d", len(events))
	}

	events, err = rec.Query(context.Background(), Filter{Limit: 999999})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(events) != 1200 {
		t.Fatalf("capped query should still return all 1200, got %d", len(events))
	}
}

// failingStore rejects every append.
type failingStore struct {
	InMemory
	appends int
}

func (s *failingStore) Append(ctx context.Context, e *Event) error {
	s.appends++
	return errors.New("disk full")
}

func TestRecordSurvivesWriteFailure(t *testing.T) {
	store := &failingStore{}
	rec := NewRecorder(store)

	// Must not panic or propagate: the triggering action's outcome is
	// unaffected by audit trouble.
	rec.Record(context.Background(), ActionRegistryReset, "alice", "", "registry", true, nil)
	if store.appends != 1 {
		t.Fatalf("expected one attempted append, got %d", store.appends)
	}
	if store.Len() != 0 {
		t.Fatalf("failed append should not store an event")
	}
}
