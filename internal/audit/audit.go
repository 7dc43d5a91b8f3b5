// Package audit keeps the append-only record of security-relevant actions.
// Events are immutable once written; nothing in this layer updates or
// deletes them.
package audit

import (
	"context"
	"errors"
	"time"

	"artreg.org/internal/ids"
	"artreg.org/internal/obs"
)

// Action names form a closed enum; call sites use these constants so the
// query filter stays meaningful.
type Action string

const (
	ActionRegistryReset    Action = "registry.reset"
	ActionArtifactCreate   Action = "artifact.create"
	ActionArtifactUpdate   Action = "artifact.update"
	ActionArtifactDelete   Action = "artifact.delete"
	ActionArtifactDownload Action = "artifact.download"
	ActionArtifactSearch   Action = "artifact.search"
	ActionTokenIssue       Action = "auth.token.issue"
	ActionAuthDenied       Action = "auth.denied"
	ActionRateLimited      Action = "rate.limited"
)

// Event is one appended row. Metadata is restricted by convention at call
// sites to safe fields only: never tokens, secrets, or payload bytes.
type Event struct {
	ID           string            `json:"id"`
	Timestamp    time.Time         `json:"timestamp"`
	Action       Action            `json:"action"`
	SubjectID    string            `json:"subject_id,omitempty"`
	ResourceID   string            `json:"resource_id,omitempty"`
	ResourceType string            `json:"resource_type,omitempty"`
	Success      bool              `json:"success"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// Filter selects events for an admin query.
type Filter struct {
	Start     time.Time
	End       time.Time
	SubjectID string
	Action    Action
	Limit     int
}

// maxQueryLimit caps how many rows one audit query may return.
const maxQueryLimit = 10000

const defaultQueryLimit = 1000

// Store persists events.
type Store interface {
	Append(ctx context.Context, e *Event) error
	// Query returns matching events newest-first, up to Filter.Limit.
	Query(ctx context.Context, f Filter) ([]Event, error)
}

// ErrAppendFailed wraps a store failure during Record.
var ErrAppendFailed = errors.New("audit: append failed")

// Recorder writes events. An event is recorded only after the action's
// outcome is known, never speculatively.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder wires a Recorder over a store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, now: time.Now}
}

// Record appends one event. A failed write is itself security-relevant:
// it is error-logged and counted, but it never changes the outcome of the
// action that triggered it, so no error is returned.
func (r *Recorder) Record(ctx context.Context, action Action, subjectID, resourceID, resourceType string, success bool, metadata map[string]string) {
	now := r.now().UTC()
	event := &Event{
		ID:           ids.NewAt(now),
		Timestamp:    now,
		Action:       action,
		SubjectID:    subjectID,
		ResourceID:   resourceID,
		ResourceType: resourceType,
		Success:      success,
	}
	if len(metadata) > 0 {
		event.Metadata = make(map[string]string, len(metadata))
		for k, v := range metadata {
			event.Metadata[k] = v
		}
	}
	if err := r.store.Append(ctx, event); err != nil {
		obs.ObserveAuditWriteFailure()
		obs.LogError("audit append failed", map[string]any{
			"action":  string(action),
			"subject": subjectID,
			"error":   err.Error(),
		})
	}
}

// Query returns events newest-first. The limit is defaulted and capped so
// one query cannot drag the whole log through the connection.
func (r *Recorder) Query(ctx context.Context, f Filter) ([]Event, error) {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	return r.store.Query(ctx, f)
}
