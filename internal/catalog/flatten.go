package catalog

import (
	"encoding/hex"
	"sort"
	"strings"

	"github.com/zeebo/blake3"
)

// Flatten turns a seed into one entry per table plus one per column.
// IDs and timestamps are assigned on import.
func Flatten(seed Seed) []Entry {
	source := strings.TrimSpace(seed.Source)
	var out []Entry
	for _, t := range seed.Tables {
		table := strings.TrimSpace(t.Name)
		out = append(out, newEntry(source, table, "", t.Keywords))
		for _, c := range t.Columns {
			out = append(out, newEntry(source, table, strings.TrimSpace(c.Name), c.Keywords))
		}
	}
	return out
}

func newEntry(source, table, column string, keywords []string) Entry {
	e := Entry{
		Source:   source,
		Table:    table,
		Column:   column,
		Keywords: NormalizeKeywords(keywords),
	}
	e.Fingerprint = Fingerprint(e)
	return e
}

// NormalizeKeywords lower-cases, trims, de-duplicates and sorts keywords.
func NormalizeKeywords(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, kw := range in {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, ok := seen[kw]; ok {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// Fingerprint is the BLAKE3 hash of the entry's searchable content.
func Fingerprint(e Entry) string {
	h := blake3.New()
	for _, part := range []string{e.Source, e.Table, e.Column} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	_, _ = h.Write([]byte(strings.Join(e.Keywords, "\x1f")))
	return hex.EncodeToString(h.Sum(nil))
}
