package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultRunInterval    = 15 * time.Minute
	DefaultCleanThreshold = 5

	runTimeout      = 10 * time.Minute
	maxProcessTimes = 100
)

type RunnerOptions struct {
	Interval       time.Duration
	Workers        int
	AutoClean      bool
	CleanThreshold int
}

// Stats describes what the runner has done since it was started.
type Stats struct {
	CurrentWorkers     int           `json:"current_workers"`
	QueueSize          int           `json:"queue_size"`
	TotalProcessed     int64         `json:"total_processed"`
	TotalErrors        int64         `json:"total_errors"`
	TotalInserted      int64         `json:"total_inserted"`
	RemovedSources     int64         `json:"removed_sources"`
	AverageProcessTime time.Duration `json:"average_process_time"`
	LastProcessedAt    *time.Time    `json:"last_processed_at,omitempty"`

	processTimes []time.Duration
}

// Runner periodically ingests every category. A category is never ingested
// twice at the same time.
type Runner struct {
	service        CategoryService
	interval       time.Duration
	workerCount    int
	autoClean      bool
	cleanThreshold int

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface

	mu       sync.Mutex
	pending  map[int64]bool
	failures map[int64]map[string]int
	stats    *Stats
}

func NewRunner(service CategoryService, opts RunnerOptions) *Runner {
	if opts.Interval <= 0 {
		opts.Interval = DefaultRunInterval
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.CleanThreshold <= 0 {
		opts.CleanThreshold = DefaultCleanThreshold
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		service:        service,
		interval:       opts.Interval,
		workerCount:    opts.Workers,
		autoClean:      opts.AutoClean,
		cleanThreshold: opts.CleanThreshold,
		ctx:            ctx,
		cancel:         cancel,
		taskQueue:      make(chan TaskInterface, 300),
		pending:        make(map[int64]bool),
		failures:       make(map[int64]map[string]int),
		stats:          &Stats{CurrentWorkers: opts.Workers},
	}
}

func (r *Runner) Start() {
	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.enqueueTasks()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				r.enqueueTasks()
			}
		}
	}()
}

func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
	close(r.taskQueue)
}

func (r *Runner) EnqueueTask(task TaskInterface) error {
	select {
	case r.taskQueue <- task:
		return nil
	case <-r.ctx.Done():
		return r.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (r *Runner) enqueueTasks() {
	categories, err := r.service.ListCategories(r.ctx)
	if err != nil {
		slog.Error("Failed to list categories", "error", err)
		return
	}
	if len(categories) == 0 {
		slog.Debug("No categories found")
		return
	}

	slog.Debug("Scheduling category ingestion", "count", len(categories))

	for _, category := range categories {
		if !r.markPending(category.ID) {
			slog.Debug("Previous run still in progress, skipping", "category", category.Name)
			continue
		}

		task := NewIngestCategoryTask(category.Name, category.ID, r.service)
		if err := r.EnqueueTask(task); err != nil {
			r.clearPending(category.ID)
			slog.Warn("Failed to enqueue IngestCategoryTask", "category", category.Name, "error", err)
		}
	}
}

func (r *Runner) markPending(categoryID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pending[categoryID] {
		return false
	}
	r.pending[categoryID] = true
	return true
}

func (r *Runner) clearPending(categoryID int64) {
	r.mu.Lock()
	delete(r.pending, categoryID)
	r.mu.Unlock()
}

func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for {
		select {
		case task, ok := <-r.taskQueue:
			if !ok {
				return
			}
			r.executeTask(id, task)

		case <-r.ctx.Done():
			return
		}
	}
}

func (r *Runner) executeTask(workerID int, task TaskInterface) {
	task.Start()

	taskCtx, cancel := context.WithTimeout(r.ctx, runTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	r.recordStats(task.GetDuration(), err)

	if err != nil {
		slog.Error("Worker task execution failed", "worker_id", workerID, "type", string(task.GetType()),
			"id", task.GetID(), "target", task.GetTarget(), "error", err)
	}

	ingest, ok := task.(*IngestCategoryTask)
	if !ok {
		return
	}
	defer r.clearPending(ingest.CategoryID)

	if ingest.Report != nil {
		r.trackFailures(taskCtx, ingest.CategoryID, ingest.Report)
	}
}

// trackFailures counts consecutive failed runs per source. Any run that
// reaches the source resets its count; rate-limited runs leave it unchanged.
func (r *Runner) trackFailures(ctx context.Context, categoryID int64, report *Report) {
	var exhausted []string

	r.mu.Lock()
	counts := r.failures[categoryID]
	if counts == nil {
		counts = make(map[string]int)
		r.failures[categoryID] = counts
	}
	for url := range report.Updated {
		delete(counts, url)
	}
	for url := range report.Unchanged {
		delete(counts, url)
	}
	for url := range report.Failed {
		counts[url]++
		if r.autoClean && counts[url] >= r.cleanThreshold {
			exhausted = append(exhausted, url)
		}
	}
	r.stats.TotalInserted += report.Inserted
	r.mu.Unlock()

	for _, url := range exhausted {
		removed, err := r.service.RemoveSourceByURL(ctx, categoryID, url)
		if err != nil {
			slog.Error("Failed to remove failing source", "category", categoryID, "url", url, "error", err)
			continue
		}

		r.mu.Lock()
		delete(counts, url)
		if removed {
			r.stats.RemovedSources++
		}
		r.mu.Unlock()

		if removed {
			slog.Warn("Removed source after consecutive failures", "category", categoryID, "url", url,
				"threshold", r.cleanThreshold)
		}
	}
}

// ConsecutiveFailures reports how many runs in a row a source has failed.
func (r *Runner) ConsecutiveFailures(categoryID int64, url string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failures[categoryID][url]
}

func (r *Runner) recordStats(duration time.Duration, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.stats.TotalProcessed++
	r.stats.LastProcessedAt = &now
	if err != nil {
		r.stats.TotalErrors++
	}

	r.stats.processTimes = append(r.stats.processTimes, duration)
	if len(r.stats.processTimes) > maxProcessTimes {
		r.stats.processTimes = r.stats.processTimes[len(r.stats.processTimes)-maxProcessTimes:]
	}
	r.updateAverageProcessTime()
}

// updateAverageProcessTime must be called with mu held.
func (r *Runner) updateAverageProcessTime() {
	if len(r.stats.processTimes) == 0 {
		r.stats.AverageProcessTime = 0
		return
	}

	var total time.Duration
	for _, d := range r.stats.processTimes {
		total += d
	}
	r.stats.AverageProcessTime = total / time.Duration(len(r.stats.processTimes))
}

func (r *Runner) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := *r.stats
	stats.QueueSize = len(r.taskQueue)
	stats.processTimes = nil
	return stats
}

// Health classifies the runner by its error rate: above 10% is degraded,
// above 50% is unhealthy.
func (r *Runner) Health() map[string]any {
	stats := r.GetStats()

	var errorRate float64
	if stats.TotalProcessed > 0 {
		errorRate = float64(stats.TotalErrors) / float64(stats.TotalProcessed)
	}

	status := "healthy"
	switch {
	case errorRate > 0.5:
		status = "unhealthy"
	case errorRate > 0.1:
		status = "degraded"
	}

	health := map[string]any{
		"status":          status,
		"workers":         stats.CurrentWorkers,
		"queue_size":      stats.QueueSize,
		"total_processed": stats.TotalProcessed,
		"total_errors":    stats.TotalErrors,
		"total_inserted":  stats.TotalInserted,
		"removed_sources": stats.RemovedSources,
		"error_rate":      errorRate,
	}
	if stats.LastProcessedAt != nil {
		health["last_processed_at"] = stats.LastProcessedAt.UTC().Format(time.RFC3339)
	}
	return health
}
