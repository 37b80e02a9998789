package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CommentFile is the append-only comments CSV.
type CommentFile struct {
	path string
}

func NewCommentFile(path string) *CommentFile {
	return &CommentFile{path: path}
}

// Append writes records as one contiguous block. The header is written only
// when the file is new or empty.
func (f *CommentFile) Append(records []CommentRecord) error {
	if len(records) == 0 {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create parent for %s: %w", f.path, err)
	}

	file, err := os.OpenFile(f.path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open comments file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat comments file: %w", err)
	}

	rows := make([][]string, 0, len(records)+1)
	if info.Size() == 0 {
		rows = append(rows, commentHeader)
	}
	for _, r := range records {
		rows = append(rows, []string{
			r.Title,
			r.VideoID,
			string(r.Bucket),
			r.Author,
			r.Text,
			r.PublishedAt.UTC().Format(time.RFC3339),
		})
	}

	w := csv.NewWriter(file)
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write comments: %w", err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync comments file: %w", err)
	}

	return nil
}
