package cfg

import "time"

type Cfg struct {
	// YouTube Data API
	APIKey       string
	SearchPhrase string

	// Run budget
	MaxPerRun    int
	LifetimeDays int

	// Files
	CatalogFile     string
	CatalogEncoding string
	ColumnsFile     string
	StateFile       string
	StateDB         string
	CommentsFile    string
	UnresolvedFile  string

	// Run lock
	LockStaleAfter time.Duration

	// Application metadata
	Timezone string
	Debug    bool
	Version  string
}

// Lifetime is the trailer lifetime as a duration.
func (c *Cfg) Lifetime() time.Duration {
	return time.Duration(c.LifetimeDays) * 24 * time.Hour
}
