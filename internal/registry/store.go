package registry

import "context"

// Store describes persistence operations required by the registry. Every
// listing method returns rows in the stable (name, id) order so pagination
// never reorders ties across pages.
type Store interface {
	Create(ctx context.Context, a Artifact) error
	Get(ctx context.Context, typ Type, id string) (Artifact, error)
	UpdateURL(ctx context.Context, typ Type, id, url string) error
	Delete(ctx context.Context, typ Type, id string) error
	Reset(ctx context.Context) error

	// ByName lists summaries of every artifact with the exact name.
	ByName(ctx context.Context, name string) ([]Meta, error)

	// Count returns a cheap over-approximation of rows matching one query.
	Count(ctx context.Context, q Query) (int, error)

	// List returns up to limit summaries of the deduplicated union of the
	// queries, ordered by (name, id), skipping offset rows.
	List(ctx context.Context, queries []Query, offset, limit int) ([]Meta, error)

	// Candidates returns up to limit artifacts (with name and readme
	// populated) whose name or readme contains any of the keywords,
	// case-insensitively, ordered by (name, id). Empty keywords mean the
	// whole corpus.
	Candidates(ctx context.Context, keywords []string, limit int) ([]Artifact, error)
}
