package tasks

import (
	"context"
	"log/slog"

	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/fetcher"
)

// FetchSourceTask fetches, prunes and normalizes one source as a single unit.
type FetchSourceTask struct {
	Task
	CategoryID int64
	prior      *database.Metadata
	fetcher    SourceFetcher
	normalizer EntryNormalizer

	Result  fetcher.Result
	Entries []database.Entry
}

func NewFetchSourceTask(url string, categoryID int64, prior *database.Metadata, f SourceFetcher, n EntryNormalizer) *FetchSourceTask {
	return &FetchSourceTask{
		Task:       NewTask(TaskTypeFetchSource, url),
		CategoryID: categoryID,
		prior:      prior,
		fetcher:    f,
		normalizer: n,
	}
}

func (t *FetchSourceTask) Execute(ctx context.Context) error {
	t.Result = t.fetcher.Fetch(ctx, t.Target, t.prior)

	if t.Result.Outcome == fetcher.Updated {
		var feedTitle string
		if t.Result.Feed != nil {
			feedTitle = t.Result.Feed.Title
		}
		t.Entries = t.normalizer.NormalizeAll(t.Result.Items, t.Target, t.CategoryID, feedTitle)
	}

	slog.Debug("Task completed",
		"type", string(t.Type),
		"url", t.Target,
		"outcome", t.Result.Outcome.String(),
		"status", t.Result.StatusCode,
		"items", len(t.Result.Items),
		"entries", len(t.Entries),
		"duration", t.GetDuration())

	return t.Result.Err
}
