package tasks

import (
	"context"

	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/feed"
	"github.com/lysyi3m/rss-sync/app/fetcher"
)

type SourceFetcher interface {
	Fetch(ctx context.Context, url string, prior *database.Metadata) fetcher.Result
}

type EntryNormalizer interface {
	NormalizeAll(items []feed.Item, sourceURL string, categoryID int64, feedTitle string) []database.Entry
}

// CategoryService is what the periodic runner needs from the application core.
type CategoryService interface {
	ListCategories(ctx context.Context) ([]database.Category, error)
	IngestCategory(ctx context.Context, categoryID int64) (*Report, error)
	RemoveSourceByURL(ctx context.Context, categoryID int64, url string) (bool, error)
}

var (
	_ SourceFetcher   = (*fetcher.Fetcher)(nil)
	_ EntryNormalizer = (*feed.Normalizer)(nil)
)
