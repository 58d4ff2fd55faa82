// Package profile builds catalog seeds from data instead of hand-written
// seed files.
//
// A run enqueues one task per CSV file of a folder, or per table of a SQLite
// database, into profile_tasks. Workers claim tasks until none are left, and
// the profiled tables are imported as a single source whose origin is the
// folder or database path.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/lookout/internal/catalog"
	"github.com/mattjoyce/lookout/internal/log"
)

// DefaultWorkers is the number of tasks profiled concurrently.
const DefaultWorkers = 4

type Profiler struct {
	queue      *Queue
	store      *catalog.Store
	workers    int
	sampleRows int
	logger     *slog.Logger
}

type Option func(*Profiler)

func WithWorkers(n int) Option {
	return func(p *Profiler) {
		if n > 0 {
			p.workers = n
		}
	}
}

func WithSampleRows(n int) Option {
	return func(p *Profiler) {
		if n >= 0 {
			p.sampleRows = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Profiler) {
		if l != nil {
			p.logger = l
		}
	}
}

func New(queue *Queue, store *catalog.Store, opts ...Option) *Profiler {
	p := &Profiler{
		queue:      queue,
		store:      store,
		workers:    DefaultWorkers,
		sampleRows: DefaultSampleRows,
		logger:     log.WithComponent("profile"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProfileDir profiles every regular file directly inside dir as a delimited
// file. Subdirectories and dot files are skipped. source defaults to the
// folder name.
func (p *Profiler) ProfileDir(ctx context.Context, dir, source string, sep rune) (Outcome, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: %w", dir, err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return Outcome{}, fmt.Errorf("read folder %s: %w", abs, err)
	}

	var specs []TaskSpec
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		specs = append(specs, TaskSpec{Kind: KindCSV, Target: filepath.Join(abs, e.Name()), Separator: sep})
	}
	if len(specs) == 0 {
		return Outcome{}, fmt.Errorf("%w: %s has no files", ErrNoTables, abs)
	}
	if source == "" {
		source = filepath.Base(abs)
	}
	return p.run(ctx, source, abs, specs)
}

// ProfileDatabase profiles every table and view of the SQLite database at
// path. source defaults to the file name without extension.
func (p *Profiler) ProfileDatabase(ctx context.Context, path, source string) (Outcome, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("resolve %s: %w", path, err)
	}
	tables, err := DiscoverTables(ctx, abs)
	if err != nil {
		return Outcome{}, err
	}
	if len(tables) == 0 {
		return Outcome{}, fmt.Errorf("%w: %s has no tables", ErrNoTables, abs)
	}

	specs := make([]TaskSpec, 0, len(tables))
	for _, t := range tables {
		p.logger.Debug("detected table", "database", abs, "table", t)
		specs = append(specs, TaskSpec{Kind: KindSQLite, Target: abs, Object: t})
	}
	if source == "" {
		source = TableName(abs)
	}
	return p.run(ctx, source, abs, specs)
}

func (p *Profiler) run(ctx context.Context, source, origin string, specs []TaskSpec) (Outcome, error) {
	out := Outcome{RunID: uuid.NewString(), Tasks: len(specs)}
	for _, ts := range specs {
		if _, err := p.queue.Enqueue(ctx, out.RunID, ts); err != nil {
			return out, err
		}
	}
	p.logger.Info("profiling started", "run_id", out.RunID, "source", source, "tasks", len(specs), "workers", p.workers)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < min(p.workers, len(specs)); i++ {
		g.Go(func() error { return p.work(gctx, out.RunID) })
	}
	if err := g.Wait(); err != nil {
		return out, err
	}

	tasks, err := p.queue.Tasks(ctx, out.RunID)
	if err != nil {
		return out, err
	}
	seed := catalog.Seed{Source: source}
	names := make(map[string]struct{}, len(tasks))
	for _, t := range tasks {
		if t.Status != StatusSucceeded || t.Result == nil {
			msg := "not run"
			if t.LastError != nil {
				msg = *t.LastError
			}
			out.Failures = append(out.Failures, Failure{Target: t.Target, Object: t.Object, Error: msg})
			continue
		}
		table := *t.Result
		if _, dup := names[table.Name]; dup {
			// data.csv and data.tsv both profile to "data".
			table.Name = filepath.Base(t.Target)
		}
		if _, dup := names[table.Name]; dup {
			out.Failures = append(out.Failures, Failure{Target: t.Target, Object: t.Object, Error: fmt.Sprintf("duplicate table %q", table.Name)})
			continue
		}
		names[table.Name] = struct{}{}
		seed.Tables = append(seed.Tables, table)
	}
	if len(seed.Tables) == 0 {
		return out, fmt.Errorf("%w: all %d tasks failed", ErrNoTables, len(tasks))
	}

	report, err := p.store.Import(ctx, seed, origin)
	if err != nil {
		return out, fmt.Errorf("import %s: %w", source, err)
	}
	out.Report = report
	p.logger.Info("profiling finished", "run_id", out.RunID, "source", source,
		"tables", len(seed.Tables), "failed", len(out.Failures), "added", report.Added, "updated", report.Updated)
	return out, nil
}

// work claims tasks of run until none are left.
func (p *Profiler) work(ctx context.Context, runID string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		task, err := p.queue.Dequeue(ctx, runID)
		if err != nil {
			return err
		}
		if task == nil {
			return nil
		}

		table, err := p.profile(ctx, task)
		if err != nil {
			msg := err.Error()
			p.logger.Warn("profiling task failed", "task_id", task.ID, "target", task.Target, "object", task.Object, "error", msg)
			if err := p.queue.Complete(ctx, task.ID, StatusFailed, nil, &msg); err != nil {
				return err
			}
			continue
		}
		if err := p.queue.Complete(ctx, task.ID, StatusSucceeded, &table, nil); err != nil {
			return err
		}
	}
}

func (p *Profiler) profile(ctx context.Context, t *Task) (catalog.SeedTable, error) {
	switch t.Kind {
	case KindCSV:
		return ProfileCSV(t.Target, t.Separator, p.sampleRows)
	case KindSQLite:
		return ProfileTable(ctx, t.Target, t.Object)
	default:
		return catalog.SeedTable{}, fmt.Errorf("unknown task kind %q", t.Kind)
	}
}
