package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
)

// IngestCategoryTask runs one ingestion pass for a category through the
// application core.
type IngestCategoryTask struct {
	Task
	CategoryID int64
	service    CategoryService

	Report *Report
}

func NewIngestCategoryTask(categoryName string, categoryID int64, service CategoryService) *IngestCategoryTask {
	if categoryName == "" {
		categoryName = strconv.FormatInt(categoryID, 10)
	}

	return &IngestCategoryTask{
		Task:       NewTask(TaskTypeIngestCategory, categoryName),
		CategoryID: categoryID,
		service:    service,
	}
}

func (t *IngestCategoryTask) Execute(ctx context.Context) error {
	report, err := t.service.IngestCategory(ctx, t.CategoryID)
	t.Report = report
	if err != nil {
		return fmt.Errorf("failed to ingest category %s: %w", t.Target, err)
	}

	slog.Debug("Task completed",
		"type", string(t.Type),
		"category", t.Target,
		"inserted", report.Inserted,
		"failed", len(report.Failed),
		"duration", t.GetDuration())

	return nil
}
