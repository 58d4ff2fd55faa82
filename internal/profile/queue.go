package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/mattjoyce/lookout/internal/catalog"
)

const maxErrorBytes = 4 * 1024

// Queue stores profiling tasks in the catalog database so a run can be
// inspected after it finished.
type Queue struct {
	db *sql.DB
	// SQLite has a single writer; claims and completions are serialized here
	// instead of surfacing SQLITE_BUSY to workers.
	mu  sync.Mutex
	now func() time.Time
}

func NewQueue(db *sql.DB) *Queue {
	return &Queue{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (q *Queue) Enqueue(ctx context.Context, runID string, ts TaskSpec) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is empty")
	}
	if ts.Target == "" {
		return "", fmt.Errorf("task target is empty")
	}
	if ts.Kind != KindCSV && ts.Kind != KindSQLite {
		return "", fmt.Errorf("unknown task kind %q", ts.Kind)
	}
	sep := ts.Separator
	if sep == 0 {
		sep = ','
	}

	id := uuid.NewString()
	nowS := q.now().Format(time.RFC3339Nano)

	q.mu.Lock()
	defer q.mu.Unlock()
	_, err := q.db.ExecContext(ctx, `
INSERT INTO profile_tasks(id, run_id, kind, target, object, separator, status, created_at)
VALUES(?, ?, ?, ?, ?, ?, ?, ?);
`, id, runID, ts.Kind, ts.Target, ts.Object, string(sep), StatusQueued, nowS)
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}
	return id, nil
}

// Dequeue claims the oldest queued task of run and marks it running. Returns
// (nil, nil) once the run has nothing left to claim.
func (q *Queue) Dequeue(ctx context.Context, runID string) (*Task, error) {
	nowS := q.now().Format(time.RFC3339Nano)

	q.mu.Lock()
	defer q.mu.Unlock()
	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM profile_tasks
  WHERE run_id = ? AND status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE profile_tasks
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING `+taskColumns+`;
`, runID, StatusQueued, StatusRunning, nowS)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue task: %w", err)
	}
	return t, nil
}

// Complete marks a task terminal. A succeeded task records the profiled table.
func (q *Queue) Complete(ctx context.Context, taskID string, status Status, result *catalog.SeedTable, lastError *string) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}
	if status != StatusSucceeded && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var resultVal any
	if result != nil {
		data, err := json.Marshal(result)
		if err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
		resultVal = string(data)
	}
	var errVal any
	if lastError != nil {
		errVal = truncate(*lastError, maxErrorBytes)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	res, err := q.db.ExecContext(ctx, `
UPDATE profile_tasks
SET status = ?, result = ?, last_error = ?, completed_at = ?
WHERE id = ?;
`, status, resultVal, errVal, q.now().Format(time.RFC3339Nano), taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("complete task %s: not found", taskID)
	}
	return nil
}

// Tasks lists every task of run in submission order.
func (q *Queue) Tasks(ctx context.Context, runID string) ([]Task, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT `+taskColumns+`
FROM profile_tasks
WHERE run_id = ?
ORDER BY created_at ASC, rowid ASC;
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const taskColumns = `id, run_id, kind, target, object, separator, status, result, last_error, created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t            Task
		kindS        string
		sepS         string
		statusS      string
		result       sql.NullString
		lastError    sql.NullString
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
	)
	if err := row.Scan(&t.ID, &t.RunID, &kindS, &t.Target, &t.Object, &sepS, &statusS,
		&result, &lastError, &createdAtS, &startedAtS, &completedAtS); err != nil {
		return nil, err
	}

	t.Kind = Kind(kindS)
	t.Status = Status(statusS)
	t.Separator, _ = utf8.DecodeRuneInString(sepS)
	if result.Valid {
		var table catalog.SeedTable
		if err := json.Unmarshal([]byte(result.String), &table); err != nil {
			return nil, fmt.Errorf("decode result of task %s: %w", t.ID, err)
		}
		t.Result = &table
	}
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		t.CreatedAt = ts
	}
	if startedAtS.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			t.StartedAt = &ts
		}
	}
	if completedAtS.Valid {
		if ts, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			t.CompletedAt = &ts
		}
	}
	return &t, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
