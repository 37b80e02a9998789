package output

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/state"
)

var releaseLayouts = []string{
	time.DateOnly,
	"02/01/2006",
	"2006/01/02",
	"02-01-2006",
	"02.01.2006",
}

// UnresolvedFile is the CSV of movies whose trailer is still missing. It is
// rewritten in full whenever its content changes.
type UnresolvedFile struct {
	path    string
	columns catalog.Columns
}

func NewUnresolvedFile(path string, columns catalog.Columns) *UnresolvedFile {
	return &UnresolvedFile{path: path, columns: columns}
}

// Merge folds added into the existing file. Rows are deduplicated by item
// identity with the last occurrence winning, so a re-check replaces the
// previous last_checked date. Existing rows for which resolved reports true
// are dropped, whichever run found their trailer. Rows are sorted by release
// date. The file is left untouched when nothing was added or removed. It
// returns the number of rows in the file afterwards.
func (f *UnresolvedFile) Merge(added []UnresolvedRecord, resolved func(catalog.Key) bool) (int, error) {
	if resolved == nil {
		resolved = func(catalog.Key) bool { return false }
	}

	existing, err := f.Load()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, r := range existing {
		if resolved(r.Item.Key()) {
			removed++
		}
	}
	if len(added) == 0 && removed == 0 {
		return len(existing), nil
	}

	merged := mergeUnresolved(existing, added, resolved)
	if err := f.write(merged); err != nil {
		return 0, err
	}
	return len(merged), nil
}

func mergeUnresolved(existing, added []UnresolvedRecord, resolved func(catalog.Key) bool) []UnresolvedRecord {
	all := append(slices.Clone(existing), added...)

	last := make(map[catalog.Key]int, len(all))
	for i, r := range all {
		last[r.Item.Key()] = i
	}

	merged := make([]UnresolvedRecord, 0, len(last))
	for i, r := range all {
		key := r.Item.Key()
		if last[key] != i || resolved(key) {
			continue
		}
		merged = append(merged, r)
	}

	slices.SortStableFunc(merged, func(a, b UnresolvedRecord) int {
		return compareRelease(a.Item.Release, b.Item.Release)
	})
	return merged
}

// compareRelease orders parseable dates chronologically before anything it
// cannot parse, which is ordered as plain strings.
func compareRelease(a, b string) int {
	ta, okA := parseRelease(a)
	tb, okB := parseRelease(b)
	switch {
	case okA && okB:
		return ta.Compare(tb)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

func parseRelease(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range releaseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Load reads the current rows. A missing file has no rows.
func (f *UnresolvedFile) Load() ([]UnresolvedRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []UnresolvedRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read unresolved file: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []UnresolvedRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read unresolved header: %w", err)
	}

	idx := map[string]int{}
	for i, name := range header {
		idx[strings.TrimSpace(name)] = i
	}
	titleIdx, ok := idx[f.columns.Title]
	if !ok {
		return nil, fmt.Errorf("unresolved file %s: %w: '%s'", f.path, catalog.ErrMissingColumn, f.columns.Title)
	}

	get := func(row []string, column string) string {
		i, ok := idx[column]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	records := make([]UnresolvedRecord, 0)
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read unresolved row: %w", err)
		}
		if titleIdx >= len(row) || strings.TrimSpace(row[titleIdx]) == "" {
			continue
		}
		records = append(records, UnresolvedRecord{
			Item: catalog.Item{
				Title:   get(row, f.columns.Title),
				Year:    get(row, f.columns.Year),
				Release: get(row, f.columns.Release),
			},
			LastChecked: get(row, lastCheckedColumn),
		})
	}

	return records, nil
}

func (f *UnresolvedFile) write(records []UnresolvedRecord) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, []string{f.columns.Title, f.columns.Year, f.columns.Release, lastCheckedColumn})
	for _, r := range records {
		rows = append(rows, []string{r.Item.Title, r.Item.Year, r.Item.Release, r.LastChecked})
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to encode unresolved rows: %w", err)
	}

	if err := state.WriteBytes(f.path, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write unresolved file: %w", err)
	}
	return nil
}
