package registry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type classifies an artifact.
type Type string

const (
	TypeModel   Type = "model"
	TypeDataset Type = "dataset"
	TypeCode    Type = "code"
)

// ParseType validates a type string from the request path.
func ParseType(raw string) (Type, error) {
	switch t := Type(strings.TrimSpace(strings.ToLower(raw))); t {
	case TypeModel, TypeDataset, TypeCode:
		return t, nil
	default:
		return "", fmt.Errorf("%w: artifact type %q", ErrInvalidInput, raw)
	}
}

// Artifact is a registered entry.
type Artifact struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        Type              `json:"type"`
	URL         string            `json:"url"`
	DownloadURL string            `json:"download_url,omitempty"`
	Readme      string            `json:"readme,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Meta is the listing summary of an artifact.
type Meta struct {
	Name string `json:"name"`
	ID   string `json:"id"`
	Type Type   `json:"type"`
}

// Query selects artifacts by exact fields. Name "*" (or empty) matches any
// name; empty Type matches any type. Version is matched against metadata.
type Query struct {
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Version string `json:"version,omitempty"`
}

// MatchesAnyName reports whether the query is an unconstrained name match.
func (q Query) MatchesAnyName() bool {
	return q.Name == "" || q.Name == "*"
}

// Page is one bounded slice of an ordered result set. NextOffset is nil on
// the final page.
type Page struct {
	Items      []Meta
	HasMore    bool
	NextOffset *int
}

var (
	ErrNotFound       = errors.New("registry: not found")
	ErrInvalidInput   = errors.New("registry: invalid input")
	ErrTooManyResults = errors.New("registry: too many results")
	ErrOffsetTooDeep  = errors.New("registry: offset too deep")
	ErrQueryTimeout   = errors.New("registry: query timeout")
)
