package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/cfg"
	"github.com/lysyi3m/trailer-comments/app/harvest"
	"github.com/lysyi3m/trailer-comments/app/output"
	"github.com/lysyi3m/trailer-comments/app/state"
	"github.com/lysyi3m/trailer-comments/app/youtube"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	appCfg, err := cfg.Load()
	if err != nil {
		return err
	}
	if appCfg == nil {
		// Help was shown
		return nil
	}

	if appCfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	slog.Info("Starting trailer comments harvester", "version", appCfg.Version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	columns, err := catalog.LoadColumns(appCfg.ColumnsFile)
	if err != nil {
		return err
	}

	reader, err := catalog.NewReader(columns, appCfg.CatalogEncoding)
	if err != nil {
		return err
	}

	items, err := reader.ReadFile(appCfg.CatalogFile)
	if err != nil {
		return err
	}
	slog.Info("Loaded catalog", "file", appCfg.CatalogFile, "items", len(items))

	lockTarget := appCfg.StateFile
	if appCfg.StateDB != "" {
		lockTarget = appCfg.StateDB
	}
	lock, err := state.AcquireRunLock(lockTarget, appCfg.LockStaleAfter)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("Failed to release run lock", "path", state.LockPath(lockTarget), "error", err)
		}
	}()

	store, closeStore, err := openStore(appCfg)
	if err != nil {
		return err
	}
	defer closeStore()

	client, err := youtube.NewClient(ctx, appCfg.APIKey, appCfg.SearchPhrase)
	if err != nil {
		return err
	}

	scheduler := harvest.NewScheduler(items, store, client,
		output.NewCommentFile(appCfg.CommentsFile),
		output.NewUnresolvedFile(appCfg.UnresolvedFile, columns),
		harvest.Options{
			MaxPerRun: appCfg.MaxPerRun,
			Lifetime:  appCfg.Lifetime(),
		})

	result, err := scheduler.Run(ctx)
	printSummary(result)
	return err
}

func openStore(appCfg *cfg.Cfg) (state.Store, func(), error) {
	if appCfg.StateDB == "" {
		slog.Debug("Using JSON state document", "path", appCfg.StateFile)
		return state.NewFileStore(appCfg.StateFile), func() {}, nil
	}

	slog.Debug("Using SQLite state database", "path", appCfg.StateDB)
	store, err := state.OpenSQLiteStore(appCfg.StateDB)
	if err != nil {
		return nil, nil, err
	}
	return store, func() {
		if err := store.Close(); err != nil {
			slog.Warn("Failed to close state database", "error", err)
		}
	}, nil
}

func printSummary(result harvest.RunResult) {
	fmt.Printf("Processed %d movies (%d visited, %d skipped), %d new comments, %d without trailer\n",
		result.Processed, result.Visited, result.Skipped, result.NewComments, result.Unresolved)
	if result.Disabled > 0 {
		fmt.Printf("%d trailers finished early because comments are disabled\n", result.Disabled)
	}
	if result.CatalogSize > 0 {
		fmt.Printf("Next run resumes at position %d/%d\n", result.NextIndex, result.CatalogSize)
	}
	if result.Exhausted && result.Processed == 0 && result.CatalogSize > 0 {
		fmt.Println("Every movie is finished, nothing left to harvest")
	}
}
