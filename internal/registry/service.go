package registry

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"artreg.org/internal/ids"
)

// Service provides high level registry operations over a Store, with the
// Executor enforcing the retrieval bounds.
type Service struct {
	store Store
	exec  *Executor
	now   func() time.Time
}

// NewService wires a Service.
func NewService(store Store, exec *Executor) *Service {
	return &Service{store: store, exec: exec, now: time.Now}
}

// Create registers a new artifact. The name is derived from the source URL.
func (s *Service) Create(ctx context.Context, rawType, url string) (Artifact, error) {
	typ, err := ParseType(rawType)
	if err != nil {
		return Artifact{}, err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return Artifact{}, fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	a := Artifact{
		ID:        ids.New(),
		Name:      NameFromURL(url),
		Type:      typ,
		URL:       url,
		CreatedAt: s.now().UTC(),
	}
	a.DownloadURL = "/download/" + a.ID
	if err := s.store.Create(ctx, a); err != nil {
		return Artifact{}, err
	}
	return a, nil
}

// Get fetches one artifact.
func (s *Service) Get(ctx context.Context, rawType, id string) (Artifact, error) {
	typ, err := ParseType(rawType)
	if err != nil {
		return Artifact{}, err
	}
	return s.store.Get(ctx, typ, id)
}

// UpdateURL replaces the source URL of an existing artifact.
func (s *Service) UpdateURL(ctx context.Context, rawType, id, url string) error {
	typ, err := ParseType(rawType)
	if err != nil {
		return err
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidInput)
	}
	return s.store.UpdateURL(ctx, typ, id, url)
}

// Delete removes one artifact.
func (s *Service) Delete(ctx context.Context, rawType, id string) error {
	typ, err := ParseType(rawType)
	if err != nil {
		return err
	}
	return s.store.Delete(ctx, typ, id)
}

// Reset clears the registry to its default empty state.
func (s *Service) Reset(ctx context.Context) error {
	return s.store.Reset(ctx)
}

// ByName lists every artifact registered under the exact name.
func (s *Service) ByName(ctx context.Context, name string) ([]Meta, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	metas, err := s.store.ByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(metas) == 0 {
		return nil, ErrNotFound
	}
	return metas, nil
}

// List runs the estimate-then-fetch sequence over a query union: the cheap
// count rejects unconstrained queries before any real retrieval begins.
func (s *Service) List(ctx context.Context, queries []Query, offset, limit int) (Page, error) {
	if _, err := s.exec.Estimate(ctx, queries); err != nil {
		return Page{}, err
	}
	return s.exec.FetchPage(ctx, queries, offset, limit)
}

// Search pages through artifacts matching a validated pattern. Matching is
// case-insensitive, as the registry's search contract promises.
func (s *Service) Search(ctx context.Context, pattern string, offset, limit int) (Page, error) {
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return Page{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.exec.SearchByPattern(ctx, re, pattern, offset, limit)
}

// NameFromURL extracts the artifact name from a source URL. Hosting sites
// keep the name in the last path segment.
func NameFromURL(url string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(url), "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return "unknown"
	}
	return parts[len(parts)-1]
}
