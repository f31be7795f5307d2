package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// FeedRepository handles database operations for categories and the feeds
// (sources) they own
type FeedRepository struct {
	db *DB
}

// NewFeedRepository creates a new feed repository
func NewFeedRepository(db *DB) *FeedRepository {
	return &FeedRepository{db: db}
}

func (r *FeedRepository) bind(query string) string {
	return sqlx.Rebind(r.db.dialect.BindType(), query)
}

// ListCategories returns all categories ordered by name
func (r *FeedRepository) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	if err := r.db.SelectContext(ctx, &categories, "SELECT id, name FROM categories ORDER BY name"); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// GetCategory returns the category or nil when it does not exist
func (r *FeedRepository) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c Category
	err := r.db.GetContext(ctx, &c, r.bind("SELECT id, name FROM categories WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// GetCategoryByName returns the category or nil when it does not exist
func (r *FeedRepository) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	var c Category
	err := r.db.GetContext(ctx, &c, r.bind("SELECT id, name FROM categories WHERE name = ?"), name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// AddCategory creates the category if needed and returns the stored row
func (r *FeedRepository) AddCategory(ctx context.Context, name string) (*Category, error) {
	query, args := Insert("categories", "name").
		Values(name).
		OnConflictDoNothing("name").
		Build(r.db.dialect.BindType())

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert category: %w", err)
	}

	c, err := r.GetCategoryByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("category %q missing after insert", name)
	}
	return c, nil
}

// RemoveCategory deletes a category together with its sources, its entries
// and the metadata of URLs no other category uses. It reports whether the
// category existed.
func (r *FeedRepository) RemoveCategory(ctx context.Context, id int64) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var urls []string
	if err := tx.SelectContext(ctx, &urls, r.bind("SELECT url FROM feeds WHERE category_id = ?"), id); err != nil {
		return false, fmt.Errorf("failed to list category sources: %w", err)
	}

	if _, err := tx.ExecContext(ctx, r.bind("DELETE FROM feed_entries WHERE category_id = ?"), id); err != nil {
		return false, fmt.Errorf("failed to delete category entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, r.bind("DELETE FROM feeds WHERE category_id = ?"), id); err != nil {
		return false, fmt.Errorf("failed to delete category sources: %w", err)
	}
	for _, u := range urls {
		if err := r.deleteOrphanMetadata(ctx, tx, u); err != nil {
			return false, err
		}
	}

	res, err := tx.ExecContext(ctx, r.bind("DELETE FROM categories WHERE id = ?"), id)
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete category: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit category removal: %w", err)
	}
	return n > 0, nil
}

// ListSources returns the sources of a category ordered by id
func (r *FeedRepository) ListSources(ctx context.Context, categoryID int64) ([]Source, error) {
	var sources []Source
	err := r.db.SelectContext(ctx, &sources,
		r.bind("SELECT id, name, url, category_id FROM feeds WHERE category_id = ? ORDER BY id"), categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	return sources, nil
}

// GetSourceURLs returns the source URLs of a category
func (r *FeedRepository) GetSourceURLs(ctx context.Context, categoryID int64) ([]string, error) {
	var urls []string
	err := r.db.SelectContext(ctx, &urls,
		r.bind("SELECT url FROM feeds WHERE category_id = ? ORDER BY id"), categoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list source urls: %w", err)
	}
	return urls, nil
}

// AddSource registers a URL under a category. Adding a URL the category
// already lists returns the existing source unchanged.
func (r *FeedRepository) AddSource(ctx context.Context, categoryID int64, name, url string) (*Source, error) {
	query, args := Insert("feeds", "name", "url", "category_id").
		Values(name, url, categoryID).
		OnConflictDoNothing("category_id", "url").
		Build(r.db.dialect.BindType())

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to insert source: %w", err)
	}

	var s Source
	err := r.db.GetContext(ctx, &s,
		r.bind("SELECT id, name, url, category_id FROM feeds WHERE category_id = ? AND url = ?"), categoryID, url)
	if err != nil {
		return nil, fmt.Errorf("failed to get source: %w", err)
	}
	return &s, nil
}

// RemoveSource deletes a source by id and reports whether it existed. The
// entries it produced are kept.
func (r *FeedRepository) RemoveSource(ctx context.Context, id int64) (bool, error) {
	var s Source
	err := r.db.GetContext(ctx, &s, r.bind("SELECT id, name, url, category_id FROM feeds WHERE id = ?"), id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get source: %w", err)
	}

	return r.RemoveSourceByURL(ctx, s.CategoryID, s.URL)
}

// RemoveSourceByURL deletes the source of a category with the given URL
func (r *FeedRepository) RemoveSourceByURL(ctx context.Context, categoryID int64, url string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, r.bind("DELETE FROM feeds WHERE category_id = ? AND url = ?"), categoryID, url)
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete source: %w", err)
	}

	if err := r.deleteOrphanMetadata(ctx, tx, url); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit source removal: %w", err)
	}
	return n > 0, nil
}

func (r *FeedRepository) deleteOrphanMetadata(ctx context.Context, tx *sqlx.Tx, url string) error {
	_, err := tx.ExecContext(ctx,
		r.bind("DELETE FROM feed_metadata WHERE url = ? AND NOT EXISTS (SELECT 1 FROM feeds WHERE url = ?)"), url, url)
	if err != nil {
		return fmt.Errorf("failed to delete feed metadata: %w", err)
	}
	return nil
}
