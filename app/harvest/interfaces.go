package harvest

import (
	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/output"
)

// CommentSink receives the comments collected during a run as one block.
type CommentSink interface {
	Append(records []output.CommentRecord) error
}

// UnresolvedSink folds the run's unresolved items into the durable list and
// drops every item resolved reports true for.
type UnresolvedSink interface {
	Merge(added []output.UnresolvedRecord, resolved func(catalog.Key) bool) (int, error)
}

var (
	_ CommentSink    = (*output.CommentFile)(nil)
	_ UnresolvedSink = (*output.UnresolvedFile)(nil)
)
