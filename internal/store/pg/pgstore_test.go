package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"artreg.org/internal/registry"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func TestCreateInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("insert into artifacts").
		WithArgs("id-1", "bert-base", "model", "https://x/bert-base",
			"/download/id-1", sqlmock.AnyArg(), sqlmock.AnyArg(), created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Create(context.Background(), registry.Artifact{
		ID:          "id-1",
		Name:        "bert-base",
		Type:        registry.TypeModel,
		URL:         "https://x/bert-base",
		DownloadURL: "/download/id-1",
		CreatedAt:   created,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, name, artifact_type.*from artifacts").
		WithArgs("missing", "model").
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), registry.TypeModel, "missing")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetScansRow(t *testing.T) {
	store, mock := newMockStore(t)

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"id", "name", "artifact_type", "url", "download_url", "readme", "metadata", "created_at",
	}).AddRow("id-1", "bert-base", "model", "https://x/bert-base",
		"/download/id-1", "readme text", []byte(`{"version":"1.0"}`), created)

	mock.ExpectQuery("select id, name, artifact_type.*from artifacts").
		WithArgs("id-1", "model").
		WillReturnRows(rows)

	a, err := store.Get(context.Background(), registry.TypeModel, "id-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if a.Name != "bert-base" || a.Type != registry.TypeModel {
		t.Fatalf("unexpected artifact: %+v", a)
	}
	if a.Metadata["version"] != "1.0" {
		t.Fatalf("metadata not decoded: %v", a.Metadata)
	}
}

func TestUpdateURLRequiresRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update artifacts set url").
		WithArgs("https://x/new", "missing", "model").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateURL(context.Background(), registry.TypeModel, "missing", "https://x/new")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRequiresRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from artifacts where").
		WithArgs("id-1", "model").
		WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Delete(context.Background(), registry.TypeModel, "id-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	mock.ExpectExec("delete from artifacts where").
		WithArgs("id-1", "model").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := store.Delete(context.Background(), registry.TypeModel, "id-1")
	if !errors.Is(err, registry.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCountBuildsClauseFromQuery(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count\(\*\) from artifacts where name=\$1 and artifact_type=\$2`).
		WithArgs("bert-base", "model").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	n, err := store.Count(context.Background(), registry.Query{Name: "bert-base", Type: "model"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("Count = %d, want 3", n)
	}

	// "*" name matches anything: the clause degenerates to true.
	mock.ExpectQuery(`select count\(\*\) from artifacts where true`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	n, err = store.Count(context.Background(), registry.Query{Name: "*"})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 10 {
		t.Fatalf("Count = %d, want 10", n)
	}
}

func TestListUnionsQueriesWithStableOrder(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"name", "id", "artifact_type"}).
		AddRow("bert-base", "id-1", "model").
		AddRow("squad", "id-2", "dataset")

	mock.ExpectQuery(`select name, id, artifact_type from artifacts where name=\$1 union select name, id, artifact_type from artifacts where artifact_type=\$2 order by name, id offset \$3 limit \$4`).
		WithArgs("bert-base", "dataset", 0, 11).
		WillReturnRows(rows)

	metas, err := store.List(context.Background(),
		[]registry.Query{{Name: "bert-base"}, {Type: "dataset"}}, 0, 11)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(metas) != 2 || metas[0].Name != "bert-base" || metas[1].Type != registry.TypeDataset {
		t.Fatalf("unexpected metas: %+v", metas)
	}
}

func TestCandidatesFiltersByKeywords(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "name", "artifact_type", "coalesce"}).
		AddRow("id-1", "bert-base", "model", "a readme")

	mock.ExpectQuery(`from artifacts where \(name ilike \$1 or readme ilike \$1\)`).
		WithArgs("%bert%", 101).
		WillReturnRows(rows)

	out, err := store.Candidates(context.Background(), []string{"bert"}, 101)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(out) != 1 || out[0].Name != "bert-base" || out[0].Readme != "a readme" {
		t.Fatalf("unexpected candidates: %+v", out)
	}
}

func TestResetClearsTable(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("delete from artifacts").WillReturnResult(sqlmock.NewResult(0, 42))
	if err := store.Reset(context.Background()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
