package profile

import (
	"errors"
	"time"

	"github.com/mattjoyce/lookout/internal/catalog"
)

type Kind string

const (
	// KindCSV profiles one delimited text file into one table.
	KindCSV Kind = "csv"
	// KindSQLite profiles one table of a SQLite database file.
	KindSQLite Kind = "sqlite"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultSampleRows is how many data rows are read to infer column types.
const DefaultSampleRows = 200

// ErrNoTables is returned when a run produced nothing to import.
var ErrNoTables = errors.New("no tables profiled")

// Task is one unit of profiling work recorded in profile_tasks.
type Task struct {
	ID          string
	RunID       string
	Kind        Kind
	Target      string
	Object      string
	Separator   rune
	Status      Status
	Result      *catalog.SeedTable
	LastError   *string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// TaskSpec describes a task to enqueue.
type TaskSpec struct {
	Kind      Kind
	Target    string
	Object    string
	Separator rune
}

// Failure names a task that could not be profiled.
type Failure struct {
	Target string
	Object string
	Error  string
}

// Outcome summarizes one profiling run.
type Outcome struct {
	RunID    string
	Tasks    int
	Failures []Failure
	Report   catalog.ImportReport
}
