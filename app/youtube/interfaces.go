package youtube

import (
	"context"
	"errors"
	"iter"
	"time"
)

// ErrCommentsDisabled is yielded by FetchComments for a video whose owner
// turned comments off. It does not go away on retry.
var ErrCommentsDisabled = errors.New("comments are disabled for this video")

type Trailer struct {
	VideoID     string
	PublishedAt time.Time
}

type Comment struct {
	Author      string
	Text        string
	PublishedAt time.Time
}

// Gateway is the part of the video platform the harvester talks to.
//
// FindTrailer issues a single search and returns the best match, with
// found=false when the search has no result.
//
// FetchComments returns a finite, single-pass sequence of top-level comments
// published strictly after since (all comments when since is nil). Pages are
// requested lazily. A failure is yielded once as a non-nil error and ends the
// sequence; it wraps ErrCommentsDisabled when the video accepts no comments.
type Gateway interface {
	FindTrailer(ctx context.Context, title string) (trailer Trailer, found bool, err error)
	FetchComments(ctx context.Context, videoID string, since *time.Time) iter.Seq2[Comment, error]
}
