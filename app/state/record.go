package state

import (
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
)

// record is the durable form of a Harvest shared by both stores.
type record struct {
	VideoID            string  `json:"video_id,omitempty"`
	TrailerPublishedAt string  `json:"trailer_published_at,omitempty"`
	Watermark          *string `json:"last_comment_watermark"`
	Finished           bool    `json:"finished"`

	// LegacyWatermark is the field name used by the first version of the job.
	LegacyWatermark *string `json:"last_comment_date,omitempty"`
}

type documentFile struct {
	Movies    map[string]record `json:"movies"`
	NextIndex int               `json:"next_index"`
	LastRunID string            `json:"last_run_id,omitempty"`
	UpdatedAt string            `json:"updated_at,omitempty"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		// older state files stored naive timestamps
		t, err = time.Parse("2006-01-02T15:04:05", s)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

func encodeRecord(h Harvest) (record, bool) {
	var trailer Trailer
	var watermark *time.Time
	finished := false

	switch v := h.(type) {
	case Active:
		trailer, watermark = v.Trailer, v.Watermark
	case Finished:
		trailer, watermark, finished = v.Trailer, v.Watermark, true
	default:
		return record{}, false
	}

	r := record{
		VideoID:            trailer.VideoID,
		TrailerPublishedAt: formatTime(trailer.PublishedAt),
		Finished:           finished,
	}
	if watermark != nil {
		s := formatTime(*watermark)
		r.Watermark = &s
	}
	return r, true
}

// decodeRecord is lenient: an unfinished record without a usable trailer is
// Unresolved, a finished one with a video id stays Finished, and an
// unreadable watermark means comments were never fetched.
func decodeRecord(key string, r record) Harvest {
	if strings.TrimSpace(r.VideoID) == "" {
		return Unresolved{}
	}

	publishedAt, ok := parseTime(r.TrailerPublishedAt)
	if !ok {
		if r.Finished {
			// finished is terminal, the timestamp is no longer needed
			slog.Warn("Invalid trailer timestamp on finished item in state", "key", key, "trailer_published_at", r.TrailerPublishedAt)
		} else {
			slog.Warn("Invalid trailer timestamp in state, trailer will be searched again", "key", key, "trailer_published_at", r.TrailerPublishedAt)
			return Unresolved{}
		}
	}
	trailer := Trailer{VideoID: r.VideoID, PublishedAt: publishedAt}

	raw := r.Watermark
	if raw == nil {
		raw = r.LegacyWatermark
	}
	var watermark *time.Time
	if raw != nil {
		if t, ok := parseTime(*raw); ok {
			watermark = &t
		} else if strings.TrimSpace(*raw) != "" {
			slog.Warn("Invalid comment watermark in state, treating as never fetched", "key", key, "watermark", *raw)
		}
	}

	if r.Finished {
		return Finished{Trailer: trailer, Watermark: watermark}
	}
	return Active{Trailer: trailer, Watermark: watermark}
}

func encodeDocument(doc *Document) documentFile {
	file := documentFile{
		Movies:    make(map[string]record, len(doc.Items)),
		NextIndex: doc.NextIndex,
		LastRunID: doc.LastRunID,
	}
	if !doc.UpdatedAt.IsZero() {
		file.UpdatedAt = formatTime(doc.UpdatedAt)
	}
	for key, h := range doc.Items {
		if r, ok := encodeRecord(h); ok {
			file.Movies[string(key)] = r
		}
	}
	return file
}

func decodeDocument(file documentFile) *Document {
	doc := NewDocument()
	doc.NextIndex = file.NextIndex
	doc.LastRunID = file.LastRunID
	if t, ok := parseTime(file.UpdatedAt); ok {
		doc.UpdatedAt = t
	}
	for key, r := range file.Movies {
		doc.Set(catalog.Key(key), decodeRecord(key, r))
	}
	return doc
}
