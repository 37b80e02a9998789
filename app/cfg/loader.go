package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// YouTube Data API
	APIKey       string `long:"api-key" env:"YOUTUBE_API_KEY" description:"YouTube Data API key (required)" required:"true"`
	SearchPhrase string `long:"search-phrase" env:"SEARCH_PHRASE" default:"bande annonce officielle" description:"Phrase appended to the movie title when searching for its trailer"`

	// Run budget
	MaxPerRun    int `long:"max-per-run" env:"MAX_MOVIES_PER_RUN" default:"5" description:"Maximum number of movies processed per run"`
	LifetimeDays int `long:"lifetime-days" env:"TRAILER_LIFETIME_DAYS" default:"365" description:"Days after publication during which a trailer's comments are harvested"`

	// Files
	CatalogFile     string `long:"catalog" env:"MOVIES_FILE" default:"movies.csv" description:"Movie catalog CSV"`
	CatalogEncoding string `long:"catalog-encoding" env:"MOVIES_ENCODING" default:"utf-8" description:"Character encoding of the catalog CSV (e.g. utf-8, windows-1252)"`
	ColumnsFile     string `long:"columns" env:"COLUMNS_FILE" description:"YAML file mapping catalog column names (optional)"`
	StateFile       string `long:"state-file" env:"STATE_FILE" default:"state.json" description:"JSON state document"`
	StateDB         string `long:"state-db" env:"STATE_DB" description:"SQLite state database (optional, replaces the JSON state document)"`
	CommentsFile    string `long:"comments-file" env:"COMMENTS_FILE" default:"comments.csv" description:"Append-only comments CSV"`
	UnresolvedFile  string `long:"unresolved-file" env:"TRAILER_NOT_FOUND_FILE" default:"to_check_trailer.csv" description:"CSV of movies whose trailer could not be found"`

	// Run lock
	LockStaleAfter time.Duration `long:"lock-stale-after" env:"LOCK_STALE_AFTER" default:"6h" description:"Age after which a held run lock is taken over (0 disables)"`

	// Application metadata
	Timezone string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Europe/Paris)"`
	Debug    bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

// Load parses command-line arguments and environment variables. It returns
// nil, nil when help was requested.
func Load() (*Cfg, error) {
	return LoadArgs(nil)
}

// LoadArgs is Load with explicit arguments; nil means os.Args[1:].
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	var err error
	if args == nil {
		_, err = parser.Parse()
	} else {
		_, err = parser.ParseArgs(args)
	}
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		APIKey:          raw.APIKey,
		SearchPhrase:    raw.SearchPhrase,
		MaxPerRun:       raw.MaxPerRun,
		LifetimeDays:    raw.LifetimeDays,
		CatalogFile:     raw.CatalogFile,
		CatalogEncoding: raw.CatalogEncoding,
		ColumnsFile:     raw.ColumnsFile,
		StateFile:       raw.StateFile,
		StateDB:         raw.StateDB,
		CommentsFile:    raw.CommentsFile,
		UnresolvedFile:  raw.UnresolvedFile,
		LockStaleAfter:  raw.LockStaleAfter,
		Timezone:        raw.Timezone,
		Debug:           raw.Debug,
		Version:         GetVersion(),
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func validate(cfg *Cfg) error {
	if cfg.APIKey == "" {
		return fmt.Errorf("YOUTUBE_API_KEY is required")
	}

	positiveFields := map[string]int{
		"max per run":   cfg.MaxPerRun,
		"lifetime days": cfg.LifetimeDays,
	}

	for fieldName, fieldValue := range positiveFields {
		if fieldValue <= 0 {
			return fmt.Errorf("%s must be positive, got %d", fieldName, fieldValue)
		}
	}

	if cfg.LockStaleAfter < 0 {
		return fmt.Errorf("lock stale after must not be negative, got %v", cfg.LockStaleAfter)
	}

	return nil
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
