package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/rss-sync/app/cache"
	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/tasks"
)

const (
	DefaultPageSize        = 20
	DefaultMaxPageSize     = 100
	DefaultSearchThreshold = 0.3
)

// Ingester runs one ingestion pass over a set of source URLs.
type Ingester interface {
	Run(ctx context.Context, categoryID int64, sourceURLs []string) (*tasks.Report, error)
}

type Options struct {
	PageSize        int
	MaxPageSize     int
	SearchThreshold float64
}

// Page is one window of a category's entries. Next is nil on the last page.
type Page struct {
	Entries []database.Entry `json:"entries"`
	Next    *database.Cursor `json:"next,omitempty"`
}

// Service is the application core: ingestion, paginated reads and the
// administration of categories and sources.
type Service struct {
	feeds    database.FeedStore
	entries  database.EntryStore
	ingester Ingester
	cache    cache.Cache
	opts     Options
}

var _ tasks.CategoryService = (*Service)(nil)

// NewService wires the core. pageCache may be nil to disable page caching.
func NewService(feeds database.FeedStore, entries database.EntryStore, ingester Ingester,
	pageCache cache.Cache, opts Options) *Service {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = DefaultMaxPageSize
	}
	if opts.PageSize > opts.MaxPageSize {
		opts.PageSize = opts.MaxPageSize
	}
	if opts.SearchThreshold <= 0 {
		opts.SearchThreshold = DefaultSearchThreshold
	}

	return &Service{
		feeds:    feeds,
		entries:  entries,
		ingester: ingester,
		cache:    pageCache,
		opts:     opts,
	}
}

// Ingest fetches the given sources into a category. The report lists
// failed and rate-limited URLs; an error means nothing from the run could
// be persisted.
func (s *Service) Ingest(ctx context.Context, categoryID int64, sourceURLs []string) (*tasks.Report, error) {
	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	report, err := s.ingester.Run(ctx, categoryID, sourceURLs)
	if report != nil && report.Inserted > 0 {
		s.invalidate(ctx, categoryID)
	}
	return report, err
}

// IngestCategory ingests every source registered under a category.
func (s *Service) IngestCategory(ctx context.Context, categoryID int64) (*tasks.Report, error) {
	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	urls, err := s.feeds.GetSourceURLs(ctx, categoryID)
	if err != nil {
		return nil, err
	}

	return s.Ingest(ctx, categoryID, urls)
}

// GetPage returns one page of a category, newest first. A non-positive
// limit selects the default page size; larger limits are clamped.
func (s *Service) GetPage(ctx context.Context, categoryID int64, limit int, cursor *database.Cursor, search string) (*Page, error) {
	limit = s.clampLimit(limit)
	search = strings.TrimSpace(search)

	key := cache.PageKey(categoryID, pageKeyParts(limit, cursor, search)...)
	if page, ok := s.cachedPage(ctx, key); ok {
		return page, nil
	}

	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	entries, next, err := s.entries.GetPage(ctx, database.PageQuery{
		CategoryID: categoryID,
		Limit:      limit,
		Cursor:     cursor,
		Search:     search,
		Threshold:  s.opts.SearchThreshold,
	})
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []database.Entry{}
	}

	page := &Page{Entries: entries, Next: next}
	s.storePage(ctx, key, page)
	return page, nil
}

func (s *Service) clampLimit(limit int) int {
	if limit <= 0 {
		return s.opts.PageSize
	}
	return min(limit, s.opts.MaxPageSize)
}

func pageKeyParts(limit int, cursor *database.Cursor, search string) []string {
	parts := []string{strconv.Itoa(limit), search}
	if cursor != nil {
		parts = append(parts, cursor.PublishedDate.UTC().Format(time.RFC3339Nano), strconv.FormatInt(cursor.ID, 10))
	}
	return parts
}

func (s *Service) cachedPage(ctx context.Context, key string) (*Page, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		slog.Warn("Page cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var page Page
	if err := json.Unmarshal(data, &page); err != nil {
		slog.Warn("Discarding undecodable cached page", "key", key, "error", err)
		return nil, false
	}
	return &page, true
}

func (s *Service) storePage(ctx context.Context, key string, page *Page) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(page)
	if err != nil {
		slog.Warn("Failed to encode page for cache", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data); err != nil {
		slog.Warn("Page cache write failed", "key", key, "error", err)
	}
}

func (s *Service) invalidate(ctx context.Context, categoryID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePrefix(ctx, cache.PagePrefix(categoryID)); err != nil {
		slog.Warn("Page cache invalidation failed", "category", categoryID, "error", err)
	}
}

func (s *Service) requireCategory(ctx context.Context, categoryID int64) (*database.Category, error) {
	category, err := s.feeds.GetCategory(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if category == nil {
		return nil, fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
	}
	return category, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]database.Category, error) {
	categories, err := s.feeds.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	if categories == nil {
		categories = []database.Category{}
	}
	return categories, nil
}

// AddCategory creates a category, or returns the existing one with that name.
func (s *Service) AddCategory(ctx context.Context, name string) (*database.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("category name is required: %w", ErrInvalidInput)
	}
	return s.feeds.AddCategory(ctx, name)
}

// RemoveCategory deletes a category with its sources and entries.
func (s *Service) RemoveCategory(ctx context.Context, categoryID int64) error {
	removed, err := s.feeds.RemoveCategory(ctx, categoryID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("category %d: %w", categoryID, ErrNotFound)
	}

	s.invalidate(ctx, categoryID)
	slog.Info("Category removed", "category", categoryID)
	return nil
}

func (s *Service) ListSources(ctx context.Context, categoryID int64) ([]database.Source, error) {
	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	sources, err := s.feeds.ListSources(ctx, categoryID)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []database.Source{}
	}
	return sources, nil
}

// AddSource registers an http(s) feed URL under a category. When name is
// empty the URL's host is used.
func (s *Service) AddSource(ctx context.Context, categoryID int64, name, rawURL string) (*database.Source, error) {
	sourceURL, err := ValidateSourceURL(rawURL)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireCategory(ctx, categoryID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = sourceURL.Hostname()
	}
	return s.feeds.AddSource(ctx, categoryID, name, sourceURL.String())
}

func (s *Service) RemoveSource(ctx context.Context, sourceID int64) error {
	removed, err := s.feeds.RemoveSource(ctx, sourceID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return nil
}

// RemoveSourceByURL deletes a category's source by URL and reports whether
// it existed.
func (s *Service) RemoveSourceByURL(ctx context.Context, categoryID int64, sourceURL string) (bool, error) {
	return s.feeds.RemoveSourceByURL(ctx, categoryID, sourceURL)
}

// ValidateSourceURL accepts absolute http and https URLs.
func ValidateSourceURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("source url is required: %w", ErrInvalidInput)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid source url %q: %w", raw, ErrInvalidInput)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("source url %q must be an absolute http(s) url: %w", raw, ErrInvalidInput)
	}
	return u, nil
}
