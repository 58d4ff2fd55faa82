package catalog

import (
	"errors"
	"time"
)

const (
	// DefaultLimit is used when a search does not ask for a positive limit.
	DefaultLimit = 50
	// MaxLimit caps how many hits one search may return.
	MaxLimit = 500
)

// ErrInvalidSeed marks a seed document that cannot be imported.
var ErrInvalidSeed = errors.New("invalid seed")

// Entry is one searchable catalog item: a table (Column == "") or one of its columns.
type Entry struct {
	ID          string    `json:"id" msgpack:"id"`
	Source      string    `json:"source" msgpack:"source"`
	Table       string    `json:"table" msgpack:"table"`
	Column      string    `json:"column,omitempty" msgpack:"column,omitempty"`
	Keywords    []string  `json:"keywords" msgpack:"keywords"`
	Fingerprint string    `json:"fingerprint" msgpack:"fingerprint"`
	IndexedAt   time.Time `json:"indexed_at" msgpack:"indexed_at"`
}

// IsTable reports whether the entry describes a whole table.
func (e Entry) IsTable() bool { return e.Column == "" }

// Result is the answer to one search.
type Result struct {
	Query   string              `json:"query" msgpack:"query"`
	Total   int                 `json:"total" msgpack:"total"`
	Hits    []Entry             `json:"hits" msgpack:"hits"`
	Sources map[string][]string `json:"sources" msgpack:"sources"`
}

// Seed is the document format used to describe one data source.
type Seed struct {
	Source string      `yaml:"source" json:"source"`
	Tables []SeedTable `yaml:"tables" json:"tables"`
}

type SeedTable struct {
	Name     string       `yaml:"name" json:"name"`
	Keywords []string     `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Columns  []SeedColumn `yaml:"columns,omitempty" json:"columns,omitempty"`
}

type SeedColumn struct {
	Name     string   `yaml:"name" json:"name"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
}

// ImportReport summarizes what one import changed.
type ImportReport struct {
	Source    string `json:"source"`
	Origin    string `json:"origin,omitempty"`
	Added     int    `json:"added"`
	Updated   int    `json:"updated"`
	Unchanged int    `json:"unchanged"`
	Removed   int    `json:"removed"`
}

// Changed reports whether the import touched any row.
func (r ImportReport) Changed() bool {
	return r.Added+r.Updated+r.Removed > 0
}

// SourceInfo describes an imported data source.
type SourceInfo struct {
	Name       string    `json:"name"`
	Origin     string    `json:"origin,omitempty"`
	Entries    int       `json:"entries"`
	ImportedAt time.Time `json:"imported_at"`
}
