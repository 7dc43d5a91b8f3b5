package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"artreg.org/internal/obs"
	"artreg.org/internal/regexsafe"
)

// Limits bounds what a single query may cost.
type Limits struct {
	MaxPageSize     int
	MaxOffset       int
	MaxTotalResults int
	QueryTimeout    time.Duration
	RegexTimeout    time.Duration
}

// DefaultLimits mirrors the configuration defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxPageSize:     100,
		MaxOffset:       10000,
		MaxTotalResults: 1000,
		QueryTimeout:    5 * time.Second,
		RegexTimeout:    2 * time.Second,
	}
}

// Executor performs bounded, deterministic retrieval. Size exhaustion
// (too many rows, too deep an offset) and latency exhaustion (deadline) are
// distinct failures: the first means narrow the query, the second means the
// backend could not answer in time.
type Executor struct {
	store  Store
	limits Limits
	now    func() time.Time
}

// NewExecutor wires an executor over a store.
func NewExecutor(store Store, limits Limits) *Executor {
	if limits.MaxPageSize <= 0 {
		limits = DefaultLimits()
	}
	return &Executor{store: store, limits: limits, now: time.Now}
}

// Estimate returns a cheap over-approximation of the union's size. Matches
// appearing under several queries are counted once per query: the sum is
// biased toward rejection, never silent under-counting.
func (e *Executor) Estimate(ctx context.Context, queries []Query) (int, error) {
	if len(queries) == 0 {
		return 0, fmt.Errorf("%w: at least one query is required", ErrInvalidInput)
	}
	total := 0
	for _, q := range queries {
		n, err := e.store.Count(ctx, q)
		if err != nil {
			return 0, e.mapStoreErr(err)
		}
		total += n
	}
	if total > e.limits.MaxTotalResults {
		return total, fmt.Errorf("%w: estimated %d results, limit %d",
			ErrTooManyResults, total, e.limits.MaxTotalResults)
	}
	return total, nil
}

// FetchPage retrieves one page of the union under the executor deadline.
// It asks the store for limit+1 rows; the extra row only signals that more
// pages exist and is never returned.
func (e *Executor) FetchPage(ctx context.Context, queries []Query, offset, limit int) (Page, error) {
	limit, err := e.checkBounds(offset, limit)
	if err != nil {
		return Page{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.limits.QueryTimeout)
	defer cancel()

	rows, err := e.store.List(ctx, queries, offset, limit+1)
	if err != nil {
		return Page{}, e.mapStoreErr(err)
	}
	return assemblePage(rows, offset, limit), nil
}

// SearchByPattern pages through artifacts whose name or readme matches the
// compiled pattern. The pattern must already have passed the safety
// analyzer; literal keywords extracted from it narrow the candidate set at
// the store before the exact regex runs, so worst-case work is bounded by
// the pre-filtered subset. A wall-clock budget on the match loop backs up
// the static analysis.
func (e *Executor) SearchByPattern(ctx context.Context, re *regexp.Regexp, pattern string, offset, limit int) (Page, error) {
	limit, err := e.checkBounds(offset, limit)
	if err != nil {
		return Page{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, e.limits.QueryTimeout)
	defer cancel()

	keywords := regexsafe.LiteralKeywords(pattern)
	candidates, err := e.store.Candidates(ctx, keywords, e.limits.MaxTotalResults+1)
	if err != nil {
		return Page{}, e.mapStoreErr(err)
	}
	if len(candidates) > e.limits.MaxTotalResults {
		return Page{}, fmt.Errorf("%w: over %d candidates", ErrTooManyResults, e.limits.MaxTotalResults)
	}

	deadline := e.now().Add(e.limits.RegexTimeout)
	var matches []Meta
	for i, a := range candidates {
		if i%64 == 0 && e.now().After(deadline) {
			obs.ObserveQueryTimeout()
			return Page{}, fmt.Errorf("%w: regex budget exhausted", ErrQueryTimeout)
		}
		if re.MatchString(a.Name) || (a.Readme != "" && re.MatchString(a.Readme)) {
			matches = append(matches, Meta{Name: a.Name, ID: a.ID, Type: a.Type})
		}
	}

	page := Page{Items: slicePage(matches, offset, limit)}
	if len(matches) > offset+limit {
		page.HasMore = true
		next := offset + limit
		page.NextOffset = &next
	}
	return page, nil
}

func (e *Executor) checkBounds(offset, limit int) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset", ErrInvalidInput)
	}
	if offset > e.limits.MaxOffset {
		return 0, fmt.Errorf("%w: offset %d exceeds %d", ErrOffsetTooDeep, offset, e.limits.MaxOffset)
	}
	if limit <= 0 || limit > e.limits.MaxPageSize {
		limit = e.limits.MaxPageSize
	}
	return limit, nil
}

func (e *Executor) mapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		obs.ObserveQueryTimeout()
		return fmt.Errorf("%w: %v", ErrQueryTimeout, err)
	}
	return err
}

func assemblePage(rows []Meta, offset, limit int) Page {
	page := Page{}
	if len(rows) > limit {
		page.HasMore = true
		next := offset + limit
		page.NextOffset = &next
		rows = rows[:limit]
	}
	page.Items = rows
	return page
}
