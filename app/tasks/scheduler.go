package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/fetcher"
)

const DefaultWorkerCount = 45

// Scheduler runs one ingestion pass over a set of sources: a bounded pool of
// workers fetches them concurrently and the results are persisted with one
// bulk entry write followed by one bulk metadata write.
type Scheduler struct {
	fetcher     SourceFetcher
	normalizer  EntryNormalizer
	entries     database.EntryStore
	metadata    database.MetadataStore
	workerCount int
}

func NewScheduler(f SourceFetcher, n EntryNormalizer, entries database.EntryStore,
	metadata database.MetadataStore, workerCount int) *Scheduler {
	if workerCount <= 0 {
		workerCount = DefaultWorkerCount
	}

	return &Scheduler{
		fetcher:     f,
		normalizer:  n,
		entries:     entries,
		metadata:    metadata,
		workerCount: workerCount,
	}
}

// Run ingests the given sources into a category. Per-source problems are
// reported in the returned sets; an error means the batch could not be
// persisted. When the entry write fails the metadata write is skipped so the
// next run sees the same entries again.
func (s *Scheduler) Run(ctx context.Context, categoryID int64, sourceURLs []string) (*Report, error) {
	started := time.Now()
	report := newReport(categoryID)

	urls := uniqueURLs(sourceURLs)
	if len(urls) == 0 {
		return report, nil
	}

	priors, err := s.metadata.GetMetadata(ctx, urls)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed metadata: %w", err)
	}

	queue := make(chan *FetchSourceTask, len(urls))
	for _, url := range urls {
		var prior *database.Metadata
		if m, ok := priors[url]; ok {
			prior = &m
		}
		queue <- NewFetchSourceTask(url, categoryID, prior, s.fetcher, s.normalizer)
	}
	close(queue)

	results := make(chan *FetchSourceTask, len(urls))
	workers := min(s.workerCount, len(urls))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for task := range queue {
				s.executeTask(ctx, workerID, task)
				results <- task
			}
		}(i)
	}
	wg.Wait()
	close(results)

	var (
		entries []database.Entry
		records []database.Metadata
	)
	for task := range results {
		switch task.Result.Outcome {
		case fetcher.Updated:
			report.Updated.Add(task.Target)
		case fetcher.Unchanged:
			report.Unchanged.Add(task.Target)
		case fetcher.RateLimited:
			report.RateLimited.Add(task.Target)
		default:
			report.Failed.Add(task.Target)
		}

		entries = append(entries, task.Entries...)
		if task.Result.Metadata != nil {
			records = append(records, *task.Result.Metadata)
		}
	}

	// Oldest first, so that surrogate ids follow publication order within a run.
	slices.SortStableFunc(entries, func(a, b database.Entry) int {
		if c := a.PublishedDate.Compare(b.PublishedDate); c != 0 {
			return c
		}
		return strings.Compare(a.OriginalLink, b.OriginalLink)
	})

	inserted, err := s.entries.UpsertEntries(ctx, entries)
	if err != nil {
		slog.Error("Failed to persist entries", "run_id", report.RunID, "category", categoryID,
			"entries", len(entries), "error", err)
		return report, fmt.Errorf("failed to persist entries: %w", err)
	}
	report.Inserted = inserted

	if err := s.metadata.UpsertMetadata(ctx, records); err != nil {
		slog.Error("Failed to persist feed metadata", "run_id", report.RunID, "category", categoryID,
			"records", len(records), "error", err)
		return report, fmt.Errorf("failed to persist feed metadata: %w", err)
	}

	report.Duration = time.Since(started)

	slog.Info("Run completed",
		"run_id", report.RunID,
		"category", categoryID,
		"sources", len(urls),
		"workers", workers,
		"updated", len(report.Updated),
		"unchanged", len(report.Unchanged),
		"failed", len(report.Failed),
		"rate_limited", len(report.RateLimited),
		"inserted", report.Inserted,
		"duration", report.Duration)

	return report, nil
}

func (s *Scheduler) executeTask(ctx context.Context, workerID int, task *FetchSourceTask) {
	task.Start()

	if err := task.Execute(ctx); err != nil {
		slog.Warn("Worker task failed", "worker_id", workerID, "type", string(task.GetType()),
			"id", task.GetID(), "url", task.Target, "error", err)
	}
}

func uniqueURLs(urls []string) []string {
	seen := make(map[string]struct{}, len(urls))
	out := make([]string, 0, len(urls))
	for _, url := range urls {
		if url == "" {
			continue
		}
		if _, ok := seen[url]; ok {
			continue
		}
		seen[url] = struct{}{}
		out = append(out, url)
	}
	return out
}
