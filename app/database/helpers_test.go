package database

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// forEachDB runs fn against a fresh SQLite database and, when
// RSS_SYNC_TEST_POSTGRES_DSN is set, against a truncated Postgres database.
func forEachDB(t *testing.T, fn func(t *testing.T, db *DB)) {
	t.Helper()

	t.Run(DriverSQLite, func(t *testing.T) {
		db, err := NewConnection(ConnectionOptions{
			Driver: DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "test.db"),
		})
		if err != nil {
			t.Fatalf("Failed to open sqlite: %v", err)
		}
		t.Cleanup(func() { db.Close() })

		if _, _, err := RunMigrations(db); err != nil {
			t.Fatalf("Failed to migrate sqlite: %v", err)
		}
		fn(t, db)
	})

	dsn := os.Getenv("RSS_SYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		return
	}

	t.Run(DriverPostgres, func(t *testing.T) {
		db, err := NewConnection(ConnectionOptions{Driver: DriverPostgres, DSN: dsn})
		if err != nil {
			t.Fatalf("Failed to connect to postgres: %v", err)
		}
		t.Cleanup(func() { db.Close() })

		if _, _, err := RunMigrations(db); err != nil {
			t.Fatalf("Failed to migrate postgres: %v", err)
		}
		if _, err := db.Exec("TRUNCATE feed_entries, feed_metadata, feeds, categories RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("Failed to truncate postgres: %v", err)
		}
		fn(t, db)
	})
}

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testEntry(categoryID int64, n int, published time.Time) Entry {
	return Entry{
		OriginalLink:  fmt.Sprintf("https://example.com/post/%d", n),
		CategoryID:    categoryID,
		Title:         fmt.Sprintf("Post %d", n),
		Content:       "",
		PublishedDate: published,
		SourceURL:     "https://example.com/feed.xml",
		AdditionalInfo: AdditionalInfo{
			Tags:    []string{},
			WebName: []string{"Example"},
		},
	}
}

func mustCategory(t *testing.T, db *DB, name string) *Category {
	t.Helper()
	c, err := NewFeedRepository(db).AddCategory(t.Context(), name)
	if err != nil {
		t.Fatalf("Failed to add category: %v", err)
	}
	return c
}

func countEntries(t *testing.T, db *DB, categoryID int64) int {
	t.Helper()
	query, args := Select("COUNT(*)").
		From("feed_entries").
		Where("category_id = ?", categoryID).
		Build(db.dialect.BindType())

	var count int
	if err := db.GetContext(t.Context(), &count, query, args...); err != nil {
		t.Fatalf("Failed to count entries: %v", err)
	}
	return count
}
