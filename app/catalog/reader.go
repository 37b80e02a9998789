package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var ErrMissingColumn = errors.New("missing required column")

type Reader struct {
	columns  Columns
	encoding encoding.Encoding
}

// NewReader builds a catalog reader. charset is any WHATWG encoding label
// ("utf-8", "windows-1252", "latin1", ...); empty means UTF-8.
func NewReader(columns Columns, charset string) (*Reader, error) {
	enc := encoding.Encoding(unicode.UTF8)
	if strings.TrimSpace(charset) != "" {
		var err error
		enc, err = htmlindex.Get(charset)
		if err != nil {
			return nil, fmt.Errorf("unsupported catalog encoding '%s': %w", charset, err)
		}
	}

	return &Reader{
		columns:  columns,
		encoding: enc,
	}, nil
}

func (r *Reader) ReadFile(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	items, err := r.Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	return items, nil
}

func (r *Reader) Read(src io.Reader) ([]Item, error) {
	decoder := unicode.BOMOverride(r.encoding.NewDecoder())
	reader := csv.NewReader(transform.NewReader(src, decoder))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return []Item{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	titleIdx, yearIdx, releaseIdx := -1, -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case r.columns.Title:
			titleIdx = i
		case r.columns.Year:
			yearIdx = i
		case r.columns.Release:
			releaseIdx = i
		}
	}

	required := []struct {
		name string
		idx  int
	}{
		{r.columns.Title, titleIdx},
		{r.columns.Year, yearIdx},
		{r.columns.Release, releaseIdx},
	}
	for _, col := range required {
		if col.idx < 0 {
			return nil, fmt.Errorf("%w: '%s'", ErrMissingColumn, col.name)
		}
	}

	items := make([]Item, 0)
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", line, err)
		}

		item := Item{
			Title:   field(record, titleIdx),
			Year:    normalizeYear(field(record, yearIdx)),
			Release: field(record, releaseIdx),
		}
		if item.Title == "" {
			slog.Warn("Skipping catalog row without title", "line", line)
			continue
		}
		items = append(items, item)
	}

	return items, nil
}

func field(record []string, idx int) string {
	if idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

// normalizeYear drops a float suffix ("2021.0") that spreadsheet exports add
// to integer columns.
func normalizeYear(year string) string {
	if whole, frac, ok := strings.Cut(year, "."); ok && strings.Trim(frac, "0") == "" {
		return whole
	}
	return year
}
