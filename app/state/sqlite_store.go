package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
	_ "modernc.org/sqlite"
)

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps the Document in a SQLite database. Save rewrites every
// row in one transaction, so a run is still persisted as a whole.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, dirty, err := RunMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("Database migrations applied", "path", path, "version", version, "dirty", dirty)

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (*Document, error) {
	doc := NewDocument()

	var updatedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT next_index, last_run_id, updated_at
		FROM harvest_cursor
		WHERE id = 1
	`).Scan(&doc.NextIndex, &doc.LastRunID, &updatedAt)
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	if t, ok := parseTime(updatedAt); ok {
		doc.UpdatedAt = t
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT item_key, video_id, trailer_published_at, last_comment_watermark, finished
		FROM harvest_items
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to load items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var r record
		var watermark sql.NullString
		if err := rows.Scan(&key, &r.VideoID, &r.TrailerPublishedAt, &watermark, &r.Finished); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		if watermark.Valid {
			r.Watermark = &watermark.String
		}
		doc.Set(catalog.Key(key), decodeRecord(key, r))
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}

	return doc, nil
}

func (s *SQLiteStore) Save(ctx context.Context, doc *Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM harvest_items`); err != nil {
		return fmt.Errorf("failed to clear items: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO harvest_items (item_key, video_id, trailer_published_at, last_comment_watermark, finished)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer stmt.Close()

	for key, h := range doc.Items {
		r, ok := encodeRecord(h)
		if !ok {
			continue
		}
		var watermark sql.NullString
		if r.Watermark != nil {
			watermark = sql.NullString{String: *r.Watermark, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, string(key), r.VideoID, r.TrailerPublishedAt, watermark, r.Finished); err != nil {
			return fmt.Errorf("failed to store item %s: %w", key, err)
		}
	}

	updatedAt := ""
	if !doc.UpdatedAt.IsZero() {
		updatedAt = doc.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO harvest_cursor (id, next_index, last_run_id, updated_at)
		VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			next_index = excluded.next_index,
			last_run_id = excluded.last_run_id,
			updated_at = excluded.updated_at
	`, doc.NextIndex, doc.LastRunID, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to store cursor: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}

	return nil
}
