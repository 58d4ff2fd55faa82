package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/lookout/internal/storage"
)

// Origins recorded for seeds that did not come from a seed file.
const (
	OriginAPI           = "api"
	OriginWebhookPrefix = "webhook:"
)

// Store persists catalog entries in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

type entryKey struct {
	table  string
	column string
}

type existingEntry struct {
	id          string
	fingerprint string
}

// WebhookOrigin is the origin recorded for seeds pushed to a webhook path.
func WebhookOrigin(path string) string { return OriginWebhookPrefix + path }

// isFileOrigin reports whether origin names a seed file. Only file origins
// own their sources exclusively.
func isFileOrigin(origin string) bool {
	return origin != "" && origin != OriginAPI && !strings.HasPrefix(origin, OriginWebhookPrefix)
}

// Import upserts every entry of seed in one transaction and prunes entries of
// the same source that the seed no longer lists. origin records where the
// seed came from (a file path, or "api").
func (s *Store) Import(ctx context.Context, seed Seed, origin string) (ImportReport, error) {
	if err := seed.Validate(); err != nil {
		return ImportReport{}, err
	}
	entries := Flatten(seed)
	report := ImportReport{Source: strings.TrimSpace(seed.Source), Origin: origin}
	nowS := s.now().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ImportReport{}, fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A seed file that was renamed to a different source replaces it.
	if isFileOrigin(origin) {
		n, err := removeSources(ctx, tx, `origin = ? AND name <> ?`, origin, report.Source)
		if err != nil {
			return ImportReport{}, fmt.Errorf("replace sources from %s: %w", origin, err)
		}
		report.Removed += n
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO catalog_sources(name, origin, entries, imported_at)
VALUES(?, ?, ?, ?)
ON CONFLICT(name) DO UPDATE SET origin = excluded.origin, entries = excluded.entries, imported_at = excluded.imported_at;
`, report.Source, origin, len(entries), nowS)
	if err != nil {
		return ImportReport{}, fmt.Errorf("upsert source: %w", err)
	}

	existing, err := loadExisting(ctx, tx, report.Source)
	if err != nil {
		return ImportReport{}, err
	}

	for _, e := range entries {
		kw, err := json.Marshal(e.Keywords)
		if err != nil {
			return ImportReport{}, fmt.Errorf("encode keywords: %w", err)
		}
		key := entryKey{table: e.Table, column: e.Column}
		prev, found := existing[key]
		delete(existing, key)

		switch {
		case !found:
			_, err = tx.ExecContext(ctx, `
INSERT INTO catalog_entries(id, source, table_name, column_name, keywords, fingerprint, indexed_at)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, uuid.NewString(), e.Source, e.Table, e.Column, string(kw), e.Fingerprint, nowS)
			if err != nil {
				return ImportReport{}, fmt.Errorf("insert entry %s.%s: %w", e.Table, e.Column, err)
			}
			report.Added++
		case prev.fingerprint != e.Fingerprint:
			_, err = tx.ExecContext(ctx, `
UPDATE catalog_entries SET keywords = ?, fingerprint = ?, indexed_at = ? WHERE id = ?;
`, string(kw), e.Fingerprint, nowS, prev.id)
			if err != nil {
				return ImportReport{}, fmt.Errorf("update entry %s.%s: %w", e.Table, e.Column, err)
			}
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	for _, stale := range existing {
		if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_entries WHERE id = ?;`, stale.id); err != nil {
			return ImportReport{}, fmt.Errorf("prune entry: %w", err)
		}
		report.Removed++
	}

	if err := tx.Commit(); err != nil {
		return ImportReport{}, fmt.Errorf("commit import: %w", err)
	}
	return report, nil
}

func loadExisting(ctx context.Context, tx *sql.Tx, source string) (map[entryKey]existingEntry, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT id, table_name, column_name, fingerprint FROM catalog_entries WHERE source = ?;
`, source)
	if err != nil {
		return nil, fmt.Errorf("load existing entries: %w", err)
	}
	defer rows.Close()

	out := make(map[entryKey]existingEntry)
	for rows.Next() {
		var (
			k entryKey
			e existingEntry
		)
		if err := rows.Scan(&e.id, &k.table, &k.column, &e.fingerprint); err != nil {
			return nil, fmt.Errorf("scan existing entry: %w", err)
		}
		out[k] = e
	}
	return out, rows.Err()
}

// ImportFiles loads and imports each seed file. A failing file does not stop
// the others; all failures are joined into the returned error.
func (s *Store) ImportFiles(ctx context.Context, paths []string) ([]ImportReport, error) {
	var (
		reports []ImportReport
		errs    []error
	)
	for _, path := range paths {
		seed, err := LoadSeedFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		report, err := s.Import(ctx, seed, path)
		if err != nil {
			errs = append(errs, fmt.Errorf("import %s: %w", path, err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// RemoveOrigin deletes every source imported from origin along with its
// entries, returning how many entries were removed.
func (s *Store) RemoveOrigin(ctx context.Context, origin string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin remove: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	n, err := removeSources(ctx, tx, `origin = ?`, origin)
	if err != nil {
		return 0, fmt.Errorf("remove origin %s: %w", origin, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit remove: %w", err)
	}
	return n, nil
}

// removeSources deletes the sources matching where and their entries.
// Entries are deleted explicitly since foreign_keys is a per-connection pragma.
func removeSources(ctx context.Context, tx *sql.Tx, where string, args ...any) (int, error) {
	res, err := tx.ExecContext(ctx, `
DELETE FROM catalog_entries WHERE source IN (SELECT name FROM catalog_sources WHERE `+where+`);
`, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_sources WHERE `+where+`;`, args...); err != nil {
		return 0, err
	}
	return int(n), nil
}

const searchWhere = `
WHERE ? = ''
   OR fold(source) LIKE ? ESCAPE '\'
   OR fold(table_name) LIKE ? ESCAPE '\'
   OR fold(column_name) LIKE ? ESCAPE '\'
   OR EXISTS (SELECT 1 FROM json_each(catalog_entries.keywords) WHERE fold(json_each.value) LIKE ? ESCAPE '\')
`

// Search returns entries whose source, table, column or keywords contain
// query, case-insensitively. An empty query lists everything. Hits are in
// (source, table, column) order; no relevance ranking is applied.
func (s *Store) Search(ctx context.Context, query string, limit int) (Result, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	needle := storage.Fold(strings.TrimSpace(query))
	pattern := "%" + escapeLike(needle) + "%"
	args := []any{needle, pattern, pattern, pattern, pattern}

	result := Result{Query: query, Hits: []Entry{}, Sources: map[string][]string{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_entries`+searchWhere+`;`, args...).Scan(&result.Total); err != nil {
		return Result{}, fmt.Errorf("count matches: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, source, table_name, column_name, keywords, fingerprint, indexed_at
FROM catalog_entries`+searchWhere+`
ORDER BY source ASC, table_name ASC, column_name ASC
LIMIT ?;
`, append(args, limit)...)
	if err != nil {
		return Result{}, fmt.Errorf("search catalog: %w", err)
	}
	defer rows.Close()

	tables := make(map[string]map[string]struct{})
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return Result{}, err
		}
		result.Hits = append(result.Hits, e)
		if tables[e.Source] == nil {
			tables[e.Source] = make(map[string]struct{})
		}
		tables[e.Source][e.Table] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("search catalog: %w", err)
	}

	for source, set := range tables {
		names := make([]string, 0, len(set))
		for name := range set {
			names = append(names, name)
		}
		sort.Strings(names)
		result.Sources[source] = names
	}
	return result, nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e          Entry
		keywords   string
		indexedAtS string
	)
	if err := rows.Scan(&e.ID, &e.Source, &e.Table, &e.Column, &keywords, &e.Fingerprint, &indexedAtS); err != nil {
		return Entry{}, fmt.Errorf("scan entry: %w", err)
	}
	if err := json.Unmarshal([]byte(keywords), &e.Keywords); err != nil {
		return Entry{}, fmt.Errorf("decode keywords for %s: %w", e.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, indexedAtS); err == nil {
		e.IndexedAt = t
	}
	return e, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// Count returns the number of indexed entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM catalog_entries;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Sources lists imported sources by name.
func (s *Store) Sources(ctx context.Context) ([]SourceInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT name, origin, entries, imported_at FROM catalog_sources ORDER BY name ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var out []SourceInfo
	for rows.Next() {
		var (
			si          SourceInfo
			importedAtS string
		)
		if err := rows.Scan(&si.Name, &si.Origin, &si.Entries, &importedAtS); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		if t, err := time.Parse(time.RFC3339Nano, importedAtS); err == nil {
			si.ImportedAt = t
		}
		out = append(out, si)
	}
	return out, rows.Err()
}
