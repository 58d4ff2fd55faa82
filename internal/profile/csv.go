package profile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mattjoyce/lookout/internal/catalog"
)

// Column type keywords attached to profiled columns.
const (
	TypeInteger  = "integer"
	TypeDecimal  = "decimal"
	TypeBoolean  = "boolean"
	TypeDate     = "date"
	TypeText     = "text"
	KeywordEmpty = "empty"
	KeywordNull  = "nullable"
)

var dateLayouts = []string{time.DateOnly, time.RFC3339, time.DateTime, "2006/01/02", "02/01/2006"}

// TableName derives the catalog table name from a file path.
func TableName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ProfileCSV reads the header of a delimited file and samples up to
// sampleRows data rows to infer a type keyword per column.
func ProfileCSV(path string, sep rune, sampleRows int) (catalog.SeedTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return catalog.SeedTable{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return profileDelimited(f, TableName(path), sep, sampleRows)
}

func profileDelimited(r io.Reader, table string, sep rune, sampleRows int) (catalog.SeedTable, error) {
	if sep == 0 {
		sep = ','
	}
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return catalog.SeedTable{}, fmt.Errorf("%s: no header row", table)
	}
	if err != nil {
		return catalog.SeedTable{}, fmt.Errorf("%s: read header: %w", table, err)
	}
	names := columnNames(header)

	stats := make([]columnStats, len(names))
	for n := 0; n < sampleRows; n++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return catalog.SeedTable{}, fmt.Errorf("%s: read row %d: %w", table, n+2, err)
		}
		for i := range stats {
			value := ""
			if i < len(record) {
				value = record[i]
			}
			stats[i].observe(value)
		}
	}

	out := catalog.SeedTable{Name: table, Keywords: []string{string(KindCSV)}}
	for i, name := range names {
		out.Columns = append(out.Columns, catalog.SeedColumn{Name: name, Keywords: stats[i].keywords()})
	}
	return out, nil
}

// columnNames trims header cells and makes them unique and non-empty.
func columnNames(header []string) []string {
	seen := make(map[string]int, len(header))
	names := make([]string, len(header))
	for i, cell := range header {
		name := strings.TrimSpace(cell)
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if _, taken := seen[name]; taken {
			base := name
			for n := seen[base] + 1; ; n++ {
				name = base + "_" + strconv.Itoa(n)
				if _, taken := seen[name]; !taken {
					seen[base] = n
					break
				}
			}
		}
		seen[name] = 1
		names[i] = name
	}
	return names
}

type columnStats struct {
	rows     int
	empty    int
	integer  int
	decimal  int
	boolean  int
	date     int
	nonEmpty int
}

func (s *columnStats) observe(raw string) {
	s.rows++
	v := strings.TrimSpace(raw)
	if v == "" || strings.EqualFold(v, "null") || strings.EqualFold(v, "na") {
		s.empty++
		return
	}
	s.nonEmpty++
	if _, err := strconv.ParseInt(v, 10, 64); err == nil {
		s.integer++
	}
	if _, err := strconv.ParseFloat(v, 64); err == nil {
		s.decimal++
	}
	if _, err := strconv.ParseBool(v); err == nil {
		s.boolean++
	}
	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			s.date++
			break
		}
	}
}

func (s columnStats) keywords() []string {
	if s.nonEmpty == 0 {
		if s.rows == 0 {
			return nil
		}
		return []string{KeywordEmpty}
	}
	var kind string
	switch s.nonEmpty {
	case s.integer:
		kind = TypeInteger
	case s.decimal:
		kind = TypeDecimal
	case s.boolean:
		kind = TypeBoolean
	case s.date:
		kind = TypeDate
	default:
		kind = TypeText
	}
	if s.empty > 0 {
		return []string{kind, KeywordNull}
	}
	return []string{kind}
}
