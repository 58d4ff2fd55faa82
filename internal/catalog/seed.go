package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return Seed{}, fmt.Errorf("%w: empty document", ErrInvalidSeed)
		}
		return Seed{}, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := seed.Validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// LoadSeedFile reads and validates the seed at path.
func LoadSeedFile(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	seed, err := ParseSeed(bytes.NewReader(data))
	if err != nil {
		return Seed{}, fmt.Errorf("seed %s: %w", path, err)
	}
	return seed, nil
}

// Validate checks required names and rejects duplicate tables or columns.
func (s Seed) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Source) == "" {
		errs = append(errs, errors.New("source is required"))
	}

	tables := make(map[string]struct{}, len(s.Tables))
	for i, t := range s.Tables {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			errs = append(errs, fmt.Errorf("tables[%d]: name is required", i))
			continue
		}
		if _, dup := tables[name]; dup {
			errs = append(errs, fmt.Errorf("tables[%d]: duplicate table %q", i, name))
		}
		tables[name] = struct{}{}

		columns := make(map[string]struct{}, len(t.Columns))
		for j, c := range t.Columns {
			col := strings.TrimSpace(c.Name)
			if col == "" {
				errs = append(errs, fmt.Errorf("tables[%d].columns[%d]: name is required", i, j))
				continue
			}
			if _, dup := columns[col]; dup {
				errs = append(errs, fmt.Errorf("table %q: duplicate column %q", name, col))
			}
			columns[col] = struct{}{}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidSeed, errors.Join(errs...))
	}
	return nil
}

// DiscoverSeeds expands doublestar patterns into a sorted, de-duplicated
// list of seed files. Directories are skipped.
func DiscoverSeeds(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid seed pattern %q: %w", pattern, err)
		}
		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil || info.IsDir() {
				continue
			}
			abs, err := filepath.Abs(match)
			if err != nil {
				return nil, fmt.Errorf("resolve %s: %w", match, err)
			}
			if _, ok := seen[abs]; ok {
				continue
			}
			seen[abs] = struct{}{}
			files = append(files, abs)
		}
	}
	sort.Strings(files)
	return files, nil
}

// MatchesAny reports whether path matches one of the seed patterns.
func MatchesAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return true
		}
		if abs, err := filepath.Abs(pattern); err == nil {
			if ok, _ := doublestar.PathMatch(abs, path); ok {
				return true
			}
		}
	}
	return false
}
