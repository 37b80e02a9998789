package output

import (
	"time"

	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/classify"
)

// CommentRecord is one harvested comment. Records are appended and never
// rewritten.
type CommentRecord struct {
	Title       string
	VideoID     string
	Bucket      classify.Bucket
	Author      string
	Text        string
	PublishedAt time.Time
}

// UnresolvedRecord is a catalog item whose trailer search returned nothing.
type UnresolvedRecord struct {
	Item        catalog.Item
	LastChecked string // YYYY-MM-DD
}

const LastCheckedLayout = time.DateOnly

var commentHeader = []string{"title", "video_id", "period", "author", "text", "published_at"}

const lastCheckedColumn = "last_checked"
