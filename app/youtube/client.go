package youtube

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	ytapi "google.golang.org/api/youtube/v3"
)

const (
	DefaultSearchPhrase = "bande annonce officielle"
	commentsPageSize    = 100
)

var _ Gateway = (*Client)(nil)

type Client struct {
	service      *ytapi.Service
	searchPhrase string
}

// NewClient builds a YouTube Data API v3 client authenticated with an API
// key. Extra options are passed to the underlying service.
func NewClient(ctx context.Context, apiKey, searchPhrase string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("YouTube API key is required")
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	service, err := ytapi.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}

	if strings.TrimSpace(searchPhrase) == "" {
		searchPhrase = DefaultSearchPhrase
	}

	return &Client{
		service:      service,
		searchPhrase: searchPhrase,
	}, nil
}

func (c *Client) FindTrailer(ctx context.Context, title string) (Trailer, bool, error) {
	query := c.trailerQuery(title)

	res, err := c.service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(1).
		Context(ctx).
		Do()
	if err != nil {
		return Trailer{}, false, fmt.Errorf("failed to search trailer: %w", err)
	}

	if len(res.Items) == 0 {
		slog.Debug("No trailer found", "query", query)
		return Trailer{}, false, nil
	}

	item := res.Items[0]
	if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
		slog.Debug("Search result is not a video", "query", query)
		return Trailer{}, false, nil
	}

	publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
	if err != nil {
		return Trailer{}, false, fmt.Errorf("invalid publishedAt '%s' for video %s: %w", item.Snippet.PublishedAt, item.Id.VideoId, err)
	}

	return Trailer{
		VideoID:     item.Id.VideoId,
		PublishedAt: publishedAt,
	}, true, nil
}

func (c *Client) FetchComments(ctx context.Context, videoID string, since *time.Time) iter.Seq2[Comment, error] {
	return func(yield func(Comment, error) bool) {
		pageToken := ""
		pages := 0

		for {
			call := c.service.CommentThreads.List([]string{"snippet"}).
				VideoId(videoID).
				MaxResults(commentsPageSize).
				TextFormat("plainText").
				Context(ctx)
			if pageToken != "" {
				call = call.PageToken(pageToken)
			}

			res, err := call.Do()
			if err != nil {
				if commentsDisabled(err) {
					err = ErrCommentsDisabled
				}
				yield(Comment{}, fmt.Errorf("failed to list comments for video %s (page %d): %w", videoID, pages+1, err))
				return
			}
			pages++

			for _, thread := range res.Items {
				comment, ok := topLevelComment(thread)
				if !ok {
					continue
				}
				if since != nil && !comment.PublishedAt.After(*since) {
					continue
				}
				if !yield(comment, nil) {
					return
				}
			}

			if res.NextPageToken == "" {
				slog.Debug("Comment pages exhausted", "video_id", videoID, "pages", pages)
				return
			}
			pageToken = res.NextPageToken
		}
	}
}

func commentsDisabled(err error) bool {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) || apiErr.Code != http.StatusForbidden {
		return false
	}
	for _, item := range apiErr.Errors {
		if item.Reason == "commentsDisabled" {
			return true
		}
	}
	return false
}

func (c *Client) trailerQuery(title string) string {
	return strings.TrimSpace(title) + " " + c.searchPhrase
}

func topLevelComment(thread *ytapi.CommentThread) (Comment, bool) {
	if thread == nil || thread.Snippet == nil || thread.Snippet.TopLevelComment == nil || thread.Snippet.TopLevelComment.Snippet == nil {
		return Comment{}, false
	}

	snippet := thread.Snippet.TopLevelComment.Snippet
	publishedAt, err := time.Parse(time.RFC3339, snippet.PublishedAt)
	if err != nil {
		slog.Warn("Skipping comment with invalid publishedAt", "published_at", snippet.PublishedAt, "error", err)
		return Comment{}, false
	}

	return Comment{
		Author:      snippet.AuthorDisplayName,
		Text:        snippet.TextDisplay,
		PublishedAt: publishedAt,
	}, true
}
