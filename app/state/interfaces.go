package state

import "context"

// Store persists the whole Document. Load on an empty store returns a fresh
// Document. Save replaces the stored Document atomically.
type Store interface {
	Load(ctx context.Context) (*Document, error)
	Save(ctx context.Context, doc *Document) error
}
