package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"artreg.org/internal/registry"
)

// Store implements registry.Store over Postgres.
type Store struct {
	db *sql.DB
}

var _ registry.Store = (*Store)(nil)

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewStore wraps an existing handle (used by tests).
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Create(ctx context.Context, a registry.Artifact) error {
	meta, err := encodeMetadata(a.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into artifacts(id, name, artifact_type, url, download_url, readme, metadata, created_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, a.ID, a.Name, string(a.Type), a.URL, nullable(a.DownloadURL), nullable(a.Readme), meta, a.CreatedAt)
	return err
}

func (s *Store) Get(ctx context.Context, typ registry.Type, id string) (registry.Artifact, error) {
	var (
		a        registry.Artifact
		rawType  string
		download sql.NullString
		readme   sql.NullString
		meta     []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, artifact_type, url, download_url, readme, metadata, created_at
		from artifacts where id=$1 and artifact_type=$2
	`, id, string(typ)).Scan(&a.ID, &a.Name, &rawType, &a.URL, &download, &readme, &meta, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return registry.Artifact{}, registry.ErrNotFound
	}
	if err != nil {
		return registry.Artifact{}, err
	}
	a.Type = registry.Type(rawType)
	a.DownloadURL = download.String
	a.Readme = readme.String
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &a.Metadata); err != nil {
			return registry.Artifact{}, fmt.Errorf("decode artifact metadata: %w", err)
		}
	}
	return a, nil
}

func (s *Store) UpdateURL(ctx context.Context, typ registry.Type, id, url string) error {
	res, err := s.db.ExecContext(ctx, `
		update artifacts set url=$1 where id=$2 and artifact_type=$3
	`, url, id, string(typ))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) Delete(ctx context.Context, typ registry.Type, id string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from artifacts where id=$1 and artifact_type=$2
	`, id, string(typ))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `delete from artifacts`)
	return err
}

func (s *Store) ByName(ctx context.Context, name string) ([]registry.Meta, error) {
	rows, err := s.db.QueryContext(ctx, `
		select name, id, artifact_type from artifacts
		where name=$1 order by name, id
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetas(rows)
}

func (s *Store) Count(ctx context.Context, q registry.Query) (int, error) {
	where, args := queryClause(q, 1)
	var n int
	err := s.db.QueryRowContext(ctx,
		`select count(*) from artifacts where `+where, args...).Scan(&n)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) List(ctx context.Context, queries []registry.Query, offset, limit int) ([]registry.Meta, error) {
	if len(queries) == 0 {
		return nil, nil
	}
	// UNION deduplicates rows matched by several queries, so the combined
	// result pages the same way a single query would.
	var (
		parts []string
		args  []any
	)
	for _, q := range queries {
		where, qargs := queryClause(q, len(args)+1)
		parts = append(parts, `select name, id, artifact_type from artifacts where `+where)
		args = append(args, qargs...)
	}
	sqlText := strings.Join(parts, " union ") +
		fmt.Sprintf(" order by name, id offset $%d limit $%d", len(args)+1, len(args)+2)
	args = append(args, offset, limit)

	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMetas(rows)
}

func (s *Store) Candidates(ctx context.Context, keywords []string, limit int) ([]registry.Artifact, error) {
	var (
		where = "true"
		args  []any
	)
	if len(keywords) > 0 {
		var ors []string
		for _, kw := range keywords {
			args = append(args, "%"+kw+"%")
			n := len(args)
			ors = append(ors, fmt.Sprintf("(name ilike $%d or readme ilike $%d)", n, n))
		}
		where = strings.Join(ors, " or ")
	}
	args = append(args, limit)
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		select id, name, artifact_type, coalesce(readme, '')
		from artifacts where %s order by name, id limit $%d
	`, where, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []registry.Artifact
	for rows.Next() {
		var (
			a       registry.Artifact
			rawType string
		)
		if err := rows.Scan(&a.ID, &a.Name, &rawType, &a.Readme); err != nil {
			return nil, err
		}
		a.Type = registry.Type(rawType)
		out = append(out, a)
	}
	return out, rows.Err()
}

// queryClause renders one Query as a where clause, numbering placeholders
// from argStart.
func queryClause(q registry.Query, argStart int) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if !q.MatchesAnyName() {
		args = append(args, q.Name)
		conds = append(conds, fmt.Sprintf("name=$%d", argStart+len(args)-1))
	}
	if q.Type != "" {
		args = append(args, q.Type)
		conds = append(conds, fmt.Sprintf("artifact_type=$%d", argStart+len(args)-1))
	}
	if q.Version != "" {
		args = append(args, q.Version)
		conds = append(conds, fmt.Sprintf("metadata->>'version'=$%d", argStart+len(args)-1))
	}
	if len(conds) == 0 {
		return "true", nil
	}
	return strings.Join(conds, " and "), args
}

func scanMetas(rows *sql.Rows) ([]registry.Meta, error) {
	var out []registry.Meta
	for rows.Next() {
		var (
			m       registry.Meta
			rawType string
		)
		if err := rows.Scan(&m.Name, &m.ID, &rawType); err != nil {
			return nil, err
		}
		m.Type = registry.Type(rawType)
		out = append(out, m)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func encodeMetadata(m map[string]string) ([]byte, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode artifact metadata: %w", err)
	}
	return data, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
