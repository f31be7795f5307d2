package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/feed"
	"github.com/lysyi3m/rss-sync/app/fetcher"
)

type mockFetcher struct {
	mu      sync.Mutex
	results map[string]fetcher.Result
	calls   []string
	priors  map[string]*database.Metadata

	active    atomic.Int32
	maxActive atomic.Int32
	delay     time.Duration
}

func newMockFetcher(results map[string]fetcher.Result) *mockFetcher {
	return &mockFetcher{results: results, priors: make(map[string]*database.Metadata)}
}

func (m *mockFetcher) Fetch(ctx context.Context, url string, prior *database.Metadata) fetcher.Result {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.maxActive.Load()
		if n <= peak || m.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, url)
	m.priors[url] = prior

	res, ok := m.results[url]
	if !ok {
		return fetcher.Result{URL: url, Outcome: fetcher.Failed, Err: errors.New("unknown url")}
	}
	res.URL = url
	return res
}

type mockNormalizer struct{}

func (mockNormalizer) NormalizeAll(items []feed.Item, sourceURL string, categoryID int64, feedTitle string) []database.Entry {
	entries := make([]database.Entry, 0, len(items))
	for _, item := range items {
		entries = append(entries, database.Entry{
			OriginalLink:  item.Link,
			CategoryID:    categoryID,
			Title:         item.Title,
			PublishedDate: *item.PublishedParsed,
			SourceURL:     sourceURL,
		})
	}
	return entries
}

type mockEntryStore struct {
	calls   int
	entries []database.Entry
	err     error
}

func (m *mockEntryStore) UpsertEntries(ctx context.Context, entries []database.Entry) (int64, error) {
	m.calls++
	m.entries = entries
	if m.err != nil {
		return 0, m.err
	}
	return int64(len(entries)), nil
}

func (m *mockEntryStore) GetPage(ctx context.Context, q database.PageQuery) ([]database.Entry, *database.Cursor, error) {
	return nil, nil, nil
}

type mockMetadataStore struct {
	stored    map[string]database.Metadata
	getCalls  int
	requested []string
	putCalls  int
	records   []database.Metadata
}

func (m *mockMetadataStore) GetMetadata(ctx context.Context, urls []string) (map[string]database.Metadata, error) {
	m.getCalls++
	m.requested = urls
	out := make(map[string]database.Metadata)
	for _, url := range urls {
		if md, ok := m.stored[url]; ok {
			out[url] = md
		}
	}
	return out, nil
}

func (m *mockMetadataStore) UpsertMetadata(ctx context.Context, records []database.Metadata) error {
	m.putCalls++
	m.records = records
	return nil
}

var runTime = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func updatedResult(url string, published ...time.Time) fetcher.Result {
	items := make([]feed.Item, 0, len(published))
	for i, p := range published {
		items = append(items, feed.Item{
			Title:           fmt.Sprintf("Item %d", i),
			Link:            fmt.Sprintf("%s/item/%d", url, i),
			PublishedParsed: &p,
		})
	}
	return fetcher.Result{
		Outcome:  fetcher.Updated,
		Feed:     &feed.Metadata{Title: "Feed"},
		Items:    items,
		Metadata: &database.Metadata{URL: url, LastChecked: runTime},
	}
}

func TestSchedulerRunClassifiesSources(t *testing.T) {
	f := newMockFetcher(map[string]fetcher.Result{
		"https://a.example/feed": updatedResult("https://a.example/feed", runTime),
		"https://b.example/feed": {Outcome: fetcher.Unchanged, Metadata: &database.Metadata{URL: "https://b.example/feed"}},
		"https://c.example/feed": {Outcome: fetcher.RateLimited},
		"https://d.example/feed": {Outcome: fetcher.Failed, Err: errors.New("HTTP error: 500")},
	})
	entries := &mockEntryStore{}
	metadata := &mockMetadataStore{}

	s := NewScheduler(f, mockNormalizer{}, entries, metadata, 4)
	report, err := s.Run(t.Context(), 1, []string{
		"https://a.example/feed",
		"https://b.example/feed",
		"https://c.example/feed",
		"https://d.example/feed",
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	check := func(name string, set URLSet, want []string) {
		if diff := cmp.Diff(want, set.Sorted()); diff != "" {
			t.Errorf("Unexpected %s set (-want +got):\n%s", name, diff)
		}
	}
	check("updated", report.Updated, []string{"https://a.example/feed"})
	check("unchanged", report.Unchanged, []string{"https://b.example/feed"})
	check("rate limited", report.RateLimited, []string{"https://c.example/feed"})
	check("failed", report.Failed, []string{"https://d.example/feed"})

	if report.Inserted != 1 {
		t.Errorf("Expected 1 inserted entry, got %d", report.Inserted)
	}
	if report.RunID == "" {
		t.Error("Expected run id to be set")
	}
	if report.CategoryID != 1 {
		t.Errorf("Expected category 1, got %d", report.CategoryID)
	}
	if entries.calls != 1 {
		t.Errorf("Expected 1 entry write, got %d", entries.calls)
	}
	if metadata.getCalls != 1 || metadata.putCalls != 1 {
		t.Errorf("Expected 1 metadata read and 1 write, got %d and %d", metadata.getCalls, metadata.putCalls)
	}
	if len(metadata.records) != 2 {
		t.Errorf("Expected 2 metadata records, got %d", len(metadata.records))
	}
}

func TestSchedulerRunBoundsWorkers(t *testing.T) {
	results := make(map[string]fetcher.Result)
	var urls []string
	for i := 0; i < 12; i++ {
		url := fmt.Sprintf("https://example.com/%d", i)
		urls = append(urls, url)
		results[url] = fetcher.Result{Outcome: fetcher.Unchanged}
	}
	f := newMockFetcher(results)
	f.delay = 20 * time.Millisecond

	s := NewScheduler(f, mockNormalizer{}, &mockEntryStore{}, &mockMetadataStore{}, 3)
	report, err := s.Run(t.Context(), 1, urls)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got := f.maxActive.Load(); got > 3 {
		t.Errorf("Expected at most 3 concurrent fetches, got %d", got)
	}
	if len(report.Unchanged) != 12 {
		t.Errorf("Expected 12 unchanged sources, got %d", len(report.Unchanged))
	}
}

func TestSchedulerRunDeduplicatesURLs(t *testing.T) {
	url := "https://a.example/feed"
	f := newMockFetcher(map[string]fetcher.Result{url: {Outcome: fetcher.Unchanged}})
	metadata := &mockMetadataStore{}

	s := NewScheduler(f, mockNormalizer{}, &mockEntryStore{}, metadata, 5)
	if _, err := s.Run(t.Context(), 1, []string{url, url, "", url}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if len(f.calls) != 1 {
		t.Errorf("Expected 1 fetch, got %d", len(f.calls))
	}
	if diff := cmp.Diff([]string{url}, metadata.requested); diff != "" {
		t.Errorf("Unexpected metadata lookup (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunPassesPriorMetadata(t *testing.T) {
	url := "https://a.example/feed"
	f := newMockFetcher(map[string]fetcher.Result{url: {Outcome: fetcher.Unchanged}})
	metadata := &mockMetadataStore{stored: map[string]database.Metadata{
		url: {URL: url, ETag: `"v1"`},
	}}

	s := NewScheduler(f, mockNormalizer{}, &mockEntryStore{}, metadata, 5)
	if _, err := s.Run(t.Context(), 1, []string{url, "https://new.example/feed"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if prior := f.priors[url]; prior == nil || prior.ETag != `"v1"` {
		t.Errorf("Expected prior metadata with ETag, got %+v", prior)
	}
	if prior := f.priors["https://new.example/feed"]; prior != nil {
		t.Errorf("Expected nil prior for new source, got %+v", prior)
	}
}

func TestSchedulerRunOrdersEntries(t *testing.T) {
	f := newMockFetcher(map[string]fetcher.Result{
		"https://a.example/feed": updatedResult("https://a.example/feed", runTime.Add(2*time.Hour), runTime),
		"https://b.example/feed": updatedResult("https://b.example/feed", runTime.Add(time.Hour), runTime),
	})
	entries := &mockEntryStore{}

	s := NewScheduler(f, mockNormalizer{}, entries, &mockMetadataStore{}, 2)
	if _, err := s.Run(t.Context(), 1, []string{"https://a.example/feed", "https://b.example/feed"}); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	var got []string
	for _, e := range entries.entries {
		got = append(got, e.OriginalLink)
	}
	want := []string{
		"https://a.example/feed/item/1",
		"https://b.example/feed/item/1",
		"https://b.example/feed/item/0",
		"https://a.example/feed/item/0",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Unexpected entry order (-want +got):\n%s", diff)
	}
}

func TestSchedulerRunEntryFailureSkipsMetadata(t *testing.T) {
	url := "https://a.example/feed"
	f := newMockFetcher(map[string]fetcher.Result{url: updatedResult(url, runTime)})
	entries := &mockEntryStore{err: errors.New("disk full")}
	metadata := &mockMetadataStore{}

	s := NewScheduler(f, mockNormalizer{}, entries, metadata, 1)
	_, err := s.Run(t.Context(), 1, []string{url})
	if err == nil {
		t.Fatal("Expected error when entries cannot be persisted")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Errorf("Expected wrapped store error, got %v", err)
	}
	if metadata.putCalls != 0 {
		t.Errorf("Expected metadata write to be skipped, got %d writes", metadata.putCalls)
	}
}

func TestSchedulerRunEmpty(t *testing.T) {
	metadata := &mockMetadataStore{}
	entries := &mockEntryStore{}

	s := NewScheduler(newMockFetcher(nil), mockNormalizer{}, entries, metadata, 1)
	report, err := s.Run(t.Context(), 1, nil)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if report.Inserted != 0 || len(report.Updated) != 0 {
		t.Errorf("Expected empty report, got %+v", report)
	}
	if metadata.getCalls != 0 || entries.calls != 0 {
		t.Error("Expected no store access for an empty run")
	}
}

const rssTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
<title>%s</title>
<link>https://%s.example/</link>
%s
</channel>
</rss>`

func rssItem(link, title string, published time.Time) string {
	return fmt.Sprintf("<item><title>%s</title><link>%s</link><pubDate>%s</pubDate></item>",
		title, link, published.Format(time.RFC1123Z))
}

func openTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(database.ConnectionOptions{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, _, err := database.RunMigrations(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func TestSchedulerRunTwoSources(t *testing.T) {
	first := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(24 * time.Hour)

	var bItems atomic.Value
	bItems.Store(rssItem("https://b.example/1", "B one", first))

	mux := http.NewServeMux()
	mux.HandleFunc("/a.xml", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"a-v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"a-v1"`)
		fmt.Fprintf(w, rssTemplate, "A", "a", rssItem("https://a.example/1", "A one", first))
	})
	mux.HandleFunc("/b.xml", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, rssTemplate, "B", "b", bItems.Load().(string))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := openTestDB(t)
	category, err := database.NewFeedRepository(db).AddCategory(t.Context(), "news")
	if err != nil {
		t.Fatalf("Failed to add category: %v", err)
	}

	entryRepo := database.NewEntryRepository(db)
	metadataRepo := database.NewMetadataRepository(db)
	s := NewScheduler(
		fetcher.New(srv.Client(), feed.NewParser(), fetcher.Options{Timeout: 5 * time.Second}),
		feed.NewNormalizer(feed.NewMediaCache(100, time.Hour)),
		entryRepo,
		metadataRepo,
		2,
	)
	aURL, bURL := srv.URL+"/a.xml", srv.URL+"/b.xml"
	urls := []string{aURL, bURL}

	report, err := s.Run(t.Context(), category.ID, urls)
	if err != nil {
		t.Fatalf("Expected no error on first run, got %v", err)
	}
	if len(report.Updated) != 2 {
		t.Errorf("Expected both sources updated on first run, got %v", report.Updated.Sorted())
	}
	if report.Inserted != 2 {
		t.Errorf("Expected 2 inserted entries on first run, got %d", report.Inserted)
	}

	stored, err := metadataRepo.GetMetadata(t.Context(), urls)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	aBefore := stored[aURL]

	bItems.Store(rssItem("https://b.example/2", "B two", second) + rssItem("https://b.example/1", "B one", first))

	report, err = s.Run(t.Context(), category.ID, urls)
	if err != nil {
		t.Fatalf("Expected no error on second run, got %v", err)
	}
	if !report.Unchanged.Has(aURL) {
		t.Errorf("Expected A unchanged on second run, got unchanged=%v", report.Unchanged.Sorted())
	}
	if !report.Updated.Has(bURL) {
		t.Errorf("Expected B updated on second run, got updated=%v", report.Updated.Sorted())
	}
	if report.Inserted != 1 {
		t.Errorf("Expected 1 inserted entry on second run, got %d", report.Inserted)
	}

	stored, err = metadataRepo.GetMetadata(t.Context(), urls)
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}

	aAfter := stored[aURL]
	if aAfter.LastChecked.Before(aBefore.LastChecked) {
		t.Errorf("Expected A last checked not to move back, got %v after %v", aAfter.LastChecked, aBefore.LastChecked)
	}
	aBefore.LastChecked, aAfter.LastChecked = time.Time{}, time.Time{}
	if diff := cmp.Diff(aBefore, aAfter); diff != "" {
		t.Errorf("Expected A metadata unchanged apart from last checked (-before +after):\n%s", diff)
	}
	if aAfter.ETag != `"a-v1"` {
		t.Errorf("Expected A etag %q, got %q", `"a-v1"`, aAfter.ETag)
	}

	b, ok := stored[bURL]
	if !ok {
		t.Fatal("Expected metadata for B")
	}
	if b.LastModified == nil || !b.LastModified.Equal(second) {
		t.Errorf("Expected B last modified %v, got %v", second, b.LastModified)
	}
	if b.LatestTitle != "B two" {
		t.Errorf("Expected B latest title 'B two', got %q", b.LatestTitle)
	}

	page, _, err := entryRepo.GetPage(t.Context(), database.PageQuery{CategoryID: category.ID, Limit: 10})
	if err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	var links []string
	for _, e := range page {
		links = append(links, e.OriginalLink)
	}
	want := []string{"https://b.example/2", "https://b.example/1", "https://a.example/1"}
	if diff := cmp.Diff(want, links); diff != "" {
		t.Errorf("Unexpected page (-want +got):\n%s", diff)
	}
}
