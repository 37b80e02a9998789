package harvest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lysyi3m/trailer-comments/app/catalog"
	"github.com/lysyi3m/trailer-comments/app/classify"
	"github.com/lysyi3m/trailer-comments/app/output"
	"github.com/lysyi3m/trailer-comments/app/state"
	"github.com/lysyi3m/trailer-comments/app/youtube"
)

const DefaultLifetime = 365 * 24 * time.Hour

type Options struct {
	MaxPerRun int
	Lifetime  time.Duration
	Now       func() time.Time
}

// RunResult summarizes one run.
type RunResult struct {
	RunID       string
	Visited     int
	Processed   int
	Skipped     int
	Resolved    int
	Unresolved  int
	Expired     int
	Disabled    int
	NewComments int
	NextIndex   int
	CatalogSize int
	// Exhausted is set when the run stopped because every item was visited
	// before the budget ran out.
	Exhausted bool
}

type Scheduler struct {
	items      []catalog.Item
	store      state.Store
	gateway    youtube.Gateway
	comments   CommentSink
	unresolved UnresolvedSink
	maxPerRun  int
	lifetime   time.Duration
	now        func() time.Time
}

func NewScheduler(items []catalog.Item, store state.Store, gateway youtube.Gateway,
	comments CommentSink, unresolved UnresolvedSink, opts Options) *Scheduler {
	if opts.Lifetime <= 0 {
		opts.Lifetime = DefaultLifetime
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Scheduler{
		items:      items,
		store:      store,
		gateway:    gateway,
		comments:   comments,
		unresolved: unresolved,
		maxPerRun:  opts.MaxPerRun,
		lifetime:   opts.Lifetime,
		now:        opts.Now,
	}
}

// outcome is everything a completed visit contributes to the run. It is only
// applied once the visit returned without error.
type outcome struct {
	next       state.Harvest
	charged    bool
	resolved   bool
	expired    bool
	disabled   bool
	comments   []output.CommentRecord
	unresolved *output.UnresolvedRecord
}

// Run visits catalog items circularly from the stored cursor until the
// budget is spent or every item was visited once, then persists. When a
// visit fails the traversal stops at that item, the work completed before it
// is persisted, and the cursor is left on the failed item.
func (s *Scheduler) Run(ctx context.Context) (RunResult, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("failed to load state: %w", err)
	}

	total := len(s.items)
	cursor := doc.NextIndex
	if cursor < 0 || cursor >= total {
		if cursor != 0 {
			slog.Debug("Cursor out of range, restarting from the beginning", "cursor", cursor, "catalog_size", total)
		}
		cursor = 0
	}

	result := RunResult{RunID: uuid.NewString(), CatalogSize: total}
	now := s.now()

	var (
		comments []output.CommentRecord
		added    []output.UnresolvedRecord
		runErr   error
	)

	for result.Visited < total && result.Processed < s.maxPerRun {
		item := s.items[cursor]
		key := item.Key()

		task := NewTask(result.RunID, result.Visited, item.Title)
		task.Start()

		out, err := s.visit(ctx, &task, item, doc.Get(key), now)
		if err != nil {
			slog.Error("Task execution failed", "type", string(task.GetType()), "id", task.GetID(), "title", item.Title, "error", err)
			runErr = fmt.Errorf("failed to process %q: %w", item.Title, err)
			break
		}

		doc.Set(key, out.next)
		comments = append(comments, out.comments...)
		if out.unresolved != nil {
			added = append(added, *out.unresolved)
			result.Unresolved++
		}
		if out.resolved {
			result.Resolved++
		}
		if out.expired {
			result.Expired++
		}
		if out.disabled {
			result.Disabled++
		}
		if out.charged {
			result.Processed++
		} else {
			result.Skipped++
		}
		result.NewComments += len(out.comments)
		result.Visited++
		cursor = (cursor + 1) % total

		logTask(&task, out)
	}

	result.NextIndex = cursor
	result.Exhausted = runErr == nil && result.Processed < s.maxPerRun

	doc.NextIndex = cursor
	doc.LastRunID = result.RunID
	doc.UpdatedAt = now.UTC()

	// A cancelled run still persists what it completed.
	if err := s.persist(context.WithoutCancel(ctx), doc, comments, added); err != nil {
		if runErr != nil {
			return result, fmt.Errorf("%w (and %w)", runErr, err)
		}
		return result, err
	}

	counts := doc.Counts()
	slog.Info("Run completed",
		"run_id", result.RunID,
		"visited", result.Visited,
		"processed", result.Processed,
		"skipped", result.Skipped,
		"new_comments", result.NewComments,
		"unresolved", result.Unresolved,
		"disabled", result.Disabled,
		"next_index", result.NextIndex,
		"active", counts[state.StatusActive],
		"finished", counts[state.StatusFinished])

	return result, runErr
}

func (s *Scheduler) visit(ctx context.Context, task *Task, item catalog.Item, current state.Harvest, now time.Time) (outcome, error) {
	select {
	case <-ctx.Done():
		return outcome{}, ctx.Err()
	default:
	}

	var out outcome
	var active state.Active

	switch h := current.(type) {
	case state.Finished:
		task.Type = TaskTypeSkip
		out.next = h
		return out, nil

	case state.Active:
		active = h

	default:
		task.Type = TaskTypeResolveTrailer
		trailer, found, err := s.gateway.FindTrailer(ctx, item.Title)
		if err != nil {
			return outcome{}, fmt.Errorf("failed to find trailer: %w", err)
		}
		if !found {
			out.next = state.Unresolved{}
			out.charged = true
			out.unresolved = &output.UnresolvedRecord{
				Item:        item,
				LastChecked: now.In(time.Local).Format(output.LastCheckedLayout),
			}
			return out, nil
		}
		active = state.NewActive(state.Trailer{VideoID: trailer.VideoID, PublishedAt: trailer.PublishedAt})
		out.resolved = true
	}

	out.charged = true

	if active.Expired(now, s.lifetime) {
		task.Type = TaskTypeExpireTrailer
		out.next = active.Finish()
		out.expired = true
		return out, nil
	}

	task.Type = TaskTypeHarvestComments
	collected, next, err := s.harvestComments(ctx, item, active)
	if errors.Is(err, youtube.ErrCommentsDisabled) {
		slog.Warn("Comments are disabled on trailer, finishing", "title", item.Title, "video_id", active.Trailer.VideoID)
		out.next = next.Finish()
		out.comments = collected
		out.disabled = true
		return out, nil
	}
	if err != nil {
		return outcome{}, err
	}
	out.next = next
	out.comments = collected

	return out, nil
}

// harvestComments drains the comments newer than the watermark. Every
// returned comment advances the watermark, bucketed or not, so items whose
// recent comments all fall outside the buckets still make progress. When the
// video has comments disabled, what was read so far is returned together
// with youtube.ErrCommentsDisabled.
func (s *Scheduler) harvestComments(ctx context.Context, item catalog.Item, active state.Active) ([]output.CommentRecord, state.Active, error) {
	var (
		records []output.CommentRecord
		latest  time.Time
		seen    bool
	)

	for comment, err := range s.gateway.FetchComments(ctx, active.Trailer.VideoID, active.Watermark) {
		if errors.Is(err, youtube.ErrCommentsDisabled) {
			if seen {
				active = active.Advance(latest)
			}
			return records, active, err
		}
		if err != nil {
			return nil, active, fmt.Errorf("failed to fetch comments: %w", err)
		}
		if active.Watermark != nil && !comment.PublishedAt.After(*active.Watermark) {
			continue
		}

		if !seen || comment.PublishedAt.After(latest) {
			latest = comment.PublishedAt
			seen = true
		}

		bucket, ok := classify.Classify(comment.PublishedAt)
		if !ok {
			continue
		}
		records = append(records, output.CommentRecord{
			Title:       item.Title,
			VideoID:     active.Trailer.VideoID,
			Bucket:      bucket,
			Author:      comment.Author,
			Text:        comment.Text,
			PublishedAt: comment.PublishedAt,
		})
	}

	if seen {
		active = active.Advance(latest)
	}
	return records, active, nil
}

// persist writes comments before state so a crash in between can only
// repeat comments, never lose them. The unresolved list goes last and drops
// every row whose item is no longer Unresolved in the saved state, so a
// failed rewrite is repaired by the next run.
func (s *Scheduler) persist(ctx context.Context, doc *state.Document, comments []output.CommentRecord,
	added []output.UnresolvedRecord) error {
	if err := s.comments.Append(comments); err != nil {
		return fmt.Errorf("failed to append comments: %w", err)
	}

	if err := s.store.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}

	resolved := func(key catalog.Key) bool {
		_, ok := doc.Get(key).(state.Unresolved)
		return !ok
	}
	if _, err := s.unresolved.Merge(added, resolved); err != nil {
		return fmt.Errorf("failed to update unresolved list: %w", err)
	}

	return nil
}

func logTask(task *Task, out outcome) {
	if task.Type == TaskTypeSkip {
		slog.Debug("Task skipped", "type", string(task.Type), "id", task.ID, "title", task.Title)
		return
	}

	slog.Info("Task completed",
		"type", string(task.Type),
		"id", task.ID,
		"title", task.Title,
		"duration", task.GetDuration(),
		"status", string(out.next.Status()),
		"comments", len(out.comments))
}
