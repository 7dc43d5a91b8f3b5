package registry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestService(store Store) *Service {
	return NewService(store, NewExecutor(store, testLimits()))
}

func TestServiceCreateDerivesNameFromURL(t *testing.T) {
	store := NewInMemory()
	svc := newTestService(store)

	a, err := svc.Create(context.Background(), "model", "https://huggingface.co/google/bert-base")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Name != "bert-base" {
		t.Fatalf("expected name bert-base, got %q", a.Name)
	}
	if a.ID == "" {
		t.Fatalf("expected generated id")
	}
	if a.DownloadURL != "/download/"+a.ID {
		t.Fatalf("unexpected download url %q", a.DownloadURL)
	}

	got, err := svc.Get(context.Background(), "model", a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.URL != a.URL {
		t.Fatalf("stored artifact does not round-trip")
	}
}

func TestServiceCreateValidation(t *testing.T) {
	svc := newTestService(NewInMemory())

	if _, err := svc.Create(context.Background(), "container", "https://x/y"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for unknown type, got %v", err)
	}
	if _, err := svc.Create(context.Background(), "model", "   "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty url, got %v", err)
	}
}

func TestServiceUpdateAndDelete(t *testing.T) {
	store := NewInMemory()
	svc := newTestService(store)

	a, err := svc.Create(context.Background(), "dataset", "https://example.com/squad")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := svc.UpdateURL(context.Background(), "dataset", a.ID, "https://example.com/squad-v2"); err != nil {
		t.Fatalf("UpdateURL: %v", err)
	}
	got, err := svc.Get(context.Background(), "dataset", a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.URL != "https://example.com/squad-v2" {
		t.Fatalf("url not updated: %q", got.URL)
	}

	if err := svc.Delete(context.Background(), "dataset", a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), "dataset", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := svc.Delete(context.Background(), "dataset", a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestServiceByName(t *testing.T) {
	store := NewInMemory()
	svc := newTestService(store)

	for _, typ := range []string{"model", "code"} {
		if _, err := svc.Create(context.Background(), typ, "https://example.com/shared-name"); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	metas, err := svc.ByName(context.Background(), "shared-name")
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if len(metas) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(metas))
	}

	if _, err := svc.ByName(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.ByName(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestServiceSearchMatchesNameAndReadme(t *testing.T) {
	store := NewInMemory()
	svc := newTestService(store)

	seed := []Artifact{
		{ID: "a1", Name: "bert-base", Type: TypeModel, URL: "u", CreatedAt: time.Now()},
		{ID: "a2", Name: "resnet", Type: TypeModel, URL: "u", Readme: "A BERT-flavored vision model", CreatedAt: time.Now()},
		{ID: "a3", Name: "squad", Type: TypeDataset, URL: "u", CreatedAt: time.Now()},
	}
	for _, a := range seed {
		if err := store.Create(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	page, err := svc.Search(context.Background(), ".*bert.*", 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected 2 matches (name + readme), got %d", len(page.Items))
	}

	page, err = svc.Search(context.Background(), "nothing-here", 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("expected no matches, got %d", len(page.Items))
	}
}

func TestServiceSearchPagination(t *testing.T) {
	store := NewInMemory()
	svc := newTestService(store)

	for i := 0; i < 15; i++ {
		a := Artifact{
			ID:        fmt.Sprintf("id-%03d", i),
			Name:      fmt.Sprintf("audio-%03d", i),
			Type:      TypeModel,
			URL:       "u",
			CreatedAt: time.Now(),
		}
		if err := store.Create(context.Background(), a); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	first, err := svc.Search(context.Background(), "audio", 0, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(first.Items) != 10 || !first.HasMore || first.NextOffset == nil {
		t.Fatalf("unexpected first page: %d items, hasMore=%v", len(first.Items), first.HasMore)
	}

	second, err := svc.Search(context.Background(), "audio", *first.NextOffset, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(second.Items) != 5 || second.HasMore {
		t.Fatalf("unexpected second page: %d items, hasMore=%v", len(second.Items), second.HasMore)
	}
}

func TestServiceListEstimatesBeforeFetching(t *testing.T) {
	store := seedStore(t, 40)
	svc := newTestService(store)

	// 40 rows counted once per query: 80 > 50, rejected before any fetch.
	_, err := svc.List(context.Background(), []Query{{Name: "*"}, {Type: "model"}}, 0, 10)
	if !errors.Is(err, ErrTooManyResults) {
		t.Fatalf("expected ErrTooManyResults, got %v", err)
	}

	page, err := svc.List(context.Background(), []Query{{Name: "*"}}, 0, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(page.Items) != 10 || !page.HasMore {
		t.Fatalf("unexpected page: %d items, hasMore=%v", len(page.Items), page.HasMore)
	}
}

func TestNameFromURL(t *testing.T) {
	cases := map[string]string{
		"https://huggingface.co/google/bert-base": "bert-base",
		"https://example.com/data/squad/":         "squad",
		"model-name":                              "model-name",
		"":                                        "unknown",
		"   ":                                     "unknown",
	}
	for url, want := range cases {
		if got := NameFromURL(url); got != want {
			t.Errorf("NameFromURL(%q) = %q, want %q", url, got, want)
		}
	}
}
