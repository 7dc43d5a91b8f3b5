package registry

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// InMemory implements Store with in-process concurrency safety. It backs
// tests and secret-less local runs; production uses the Postgres store.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]Artifact // key: type/id
}

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]Artifact)}
}

func key(typ Type, id string) string { return string(typ) + "/" + id }

func (s *InMemory) Create(ctx context.Context, a Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key(a.Type, a.ID)] = a
	return nil
}

func (s *InMemory) Get(ctx context.Context, typ Type, id string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[key(typ, id)]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

func (s *InMemory) UpdateURL(ctx context.Context, typ Type, id, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(typ, id)
	a, ok := s.items[k]
	if !ok {
		return ErrNotFound
	}
	a.URL = url
	s.items[k] = a
	return nil
}

func (s *InMemory) Delete(ctx context.Context, typ Type, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(typ, id)
	if _, ok := s.items[k]; !ok {
		return ErrNotFound
	}
	delete(s.items, k)
	return nil
}

func (s *InMemory) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]Artifact)
	return nil
}

func (s *InMemory) ByName(ctx context.Context, name string) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Meta
	for _, a := range s.items {
		if a.Name == name {
			out = append(out, Meta{Name: a.Name, ID: a.ID, Type: a.Type})
		}
	}
	sortMetas(out)
	return out, nil
}

func (s *InMemory) Count(ctx context.Context, q Query) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.items {
		if matches(a, q) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) List(ctx context.Context, queries []Query, offset, limit int) ([]Meta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var all []Meta
	for _, a := range s.items {
		for _, q := range queries {
			if matches(a, q) {
				k := key(a.Type, a.ID)
				if _, dup := seen[k]; !dup {
					seen[k] = struct{}{}
					all = append(all, Meta{Name: a.Name, ID: a.ID, Type: a.Type})
				}
				break
			}
		}
	}
	sortMetas(all)
	return slicePage(all, offset, limit), nil
}

func (s *InMemory) Candidates(ctx context.Context, keywords []string, limit int) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []Artifact
	for _, a := range s.items {
		if len(keywords) == 0 || containsAny(a, keywords) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func matches(a Artifact, q Query) bool {
	if !q.MatchesAnyName() && a.Name != q.Name {
		return false
	}
	if q.Type != "" && a.Type != Type(q.Type) {
		return false
	}
	if q.Version != "" && a.Metadata["version"] != q.Version {
		return false
	}
	return true
}

func containsAny(a Artifact, keywords []string) bool {
	name := strings.ToLower(a.Name)
	readme := strings.ToLower(a.Readme)
	for _, kw := range keywords {
		if strings.Contains(name, kw) || strings.Contains(readme, kw) {
			return true
		}
	}
	return false
}

func sortMetas(metas []Meta) {
	sort.Slice(metas, func(i, j int) bool {
		if metas[i].Name != metas[j].Name {
			return metas[i].Name < metas[j].Name
		}
		return metas[i].ID < metas[j].ID
	})
}

func slicePage(all []Meta, offset, limit int) []Meta {
	if offset >= len(all) {
		return nil
	}
	end := len(all)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return all[offset:end]
}
