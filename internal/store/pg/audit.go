package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"artreg.org/internal/audit"
)

// AuditStore implements audit.Store over Postgres. Rows are append-only:
// there is no update or delete path.
type AuditStore struct {
	db *sql.DB
}

var _ audit.Store = (*AuditStore)(nil)

// NewAuditStore wraps a handle, typically the one the registry store opened.
func NewAuditStore(db *sql.DB) *AuditStore { return &AuditStore{db: db} }

func (s *AuditStore) Append(ctx context.Context, e *audit.Event) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		meta, err = json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, action, subject_id, resource_id, resource_type, success, metadata)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, e.ID, e.Timestamp, string(e.Action), nullable(e.SubjectID), nullable(e.ResourceID), nullable(e.ResourceType), e.Success, meta)
	return err
}

func (s *AuditStore) Query(ctx context.Context, f audit.Filter) ([]audit.Event, error) {
	var (
		conds []string
		args  []any
	)
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		conds = append(conds, fmt.Sprintf("occurred_at >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		conds = append(conds, fmt.Sprintf("occurred_at <= $%d", len(args)))
	}
	if f.SubjectID != "" {
		args = append(args, f.SubjectID)
		conds = append(conds, fmt.Sprintf("subject_id = $%d", len(args)))
	}
	if f.Action != "" {
		args = append(args, string(f.Action))
		conds = append(conds, fmt.Sprintf("action = $%d", len(args)))
	}
	where := "true"
	if len(conds) > 0 {
		where = strings.Join(conds, " and ")
	}
	args = append(args, f.Limit)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select id, occurred_at, action, subject_id, resource_id, resource_type, success, metadata
		from audit_log where %s
		order by occurred_at desc, id desc limit $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			e            audit.Event
			action       string
			subject      sql.NullString
			resource     sql.NullString
			resourceType sql.NullString
			meta         []byte
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &action, &subject, &resource, &resourceType, &e.Success, &meta); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		e.SubjectID = subject.String
		e.ResourceID = resource.String
		e.ResourceType = resourceType.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
