package api

import (
	"context"

	"github.com/lysyi3m/rss-sync/app/core"
	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/tasks"
)

type ServiceInterface interface {
	GetPage(ctx context.Context, categoryID int64, limit int, cursor *database.Cursor, search string) (*core.Page, error)
	IngestCategory(ctx context.Context, categoryID int64) (*tasks.Report, error)

	ListCategories(ctx context.Context) ([]database.Category, error)
	AddCategory(ctx context.Context, name string) (*database.Category, error)
	RemoveCategory(ctx context.Context, categoryID int64) error

	ListSources(ctx context.Context, categoryID int64) ([]database.Source, error)
	AddSource(ctx context.Context, categoryID int64, name, url string) (*database.Source, error)
	RemoveSource(ctx context.Context, sourceID int64) error
}

type HealthReporter interface {
	Health() map[string]any
}

var (
	_ ServiceInterface = (*core.Service)(nil)
	_ HealthReporter   = (*tasks.Runner)(nil)
)

type Handler struct {
	service ServiceInterface
	runner  HealthReporter
}

type categoryRequest struct {
	Name string `json:"name"`
}

type sourceRequest struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

type fetchResponse struct {
	FeedItems []database.Entry `json:"feed_items"`
	Next      *database.Cursor `json:"next"`
}

type reportResponse struct {
	RunID       string   `json:"run_id"`
	CategoryID  int64    `json:"category_id"`
	Inserted    int64    `json:"inserted"`
	Updated     []string `json:"updated"`
	Unchanged   []string `json:"unchanged"`
	Failed      []string `json:"failed"`
	RateLimited []string `json:"rate_limited"`
	Duration    string   `json:"duration"`
}

func newReportResponse(r *tasks.Report) reportResponse {
	return reportResponse{
		RunID:       r.RunID,
		CategoryID:  r.CategoryID,
		Inserted:    r.Inserted,
		Updated:     r.Updated.Sorted(),
		Unchanged:   r.Unchanged.Sorted(),
		Failed:      r.Failed.Sorted(),
		RateLimited: r.RateLimited.Sorted(),
		Duration:    r.Duration.String(),
	}
}
