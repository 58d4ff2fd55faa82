package profile

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// Column keywords derived from a SQLite schema.
const (
	KeywordPrimaryKey = "primary_key"
	KeywordRequired   = "required"
	KeywordView       = "view"
)

// openDatabase opens an existing SQLite file. sql.Open would create a
// missing file, so existence is checked first.
func openDatabase(path string) (*sql.DB, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("database %s is a directory", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}
	return db, nil
}

// DiscoverTables lists the user tables and views of the SQLite database at path.
func DiscoverTables(ctx context.Context, path string) ([]string, error) {
	db, err := openDatabase(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `
SELECT name FROM sqlite_master
WHERE type IN ('table', 'view') AND name NOT LIKE 'sqlite_%'
ORDER BY name ASC;
`)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", path, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ProfileTable describes one table or view of the SQLite database at path.
func ProfileTable(ctx context.Context, path, table string) (catalog.SeedTable, error) {
	db, err := openDatabase(path)
	if err != nil {
		return catalog.SeedTable{}, err
	}
	defer db.Close()

	var kind string
	err = db.QueryRowContext(ctx, `SELECT type FROM sqlite_master WHERE name = ?;`, table).Scan(&kind)
	if err == sql.ErrNoRows {
		return catalog.SeedTable{}, fmt.Errorf("table %q not found in %s", table, path)
	}
	if err != nil {
		return catalog.SeedTable{}, fmt.Errorf("look up table %q: %w", table, err)
	}

	out := catalog.SeedTable{Name: table, Keywords: []string{string(KindSQLite)}}
	if kind == "view" {
		out.Keywords = append(out.Keywords, KeywordView)
	}

	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull", pk FROM pragma_table_info(?);`, table)
	if err != nil {
		return catalog.SeedTable{}, fmt.Errorf("columns of %q: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			name, declType string
			notNull, pk    int
		)
		if err := rows.Scan(&name, &declType, &notNull, &pk); err != nil {
			return catalog.SeedTable{}, fmt.Errorf("scan column of %q: %w", table, err)
		}
		var keywords []string
		if t := strings.ToLower(strings.TrimSpace(declType)); t != "" {
			keywords = append(keywords, t)
		}
		if pk > 0 {
			keywords = append(keywords, KeywordPrimaryKey)
		}
		if notNull != 0 {
			keywords = append(keywords, KeywordRequired)
		}
		out.Columns = append(out.Columns, catalog.SeedColumn{Name: name, Keywords: keywords})
	}
	if err := rows.Err(); err != nil {
		return catalog.SeedTable{}, fmt.Errorf("columns of %q: %w", table, err)
	}
	return out, nil
}
