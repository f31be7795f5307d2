package database

import (
	"context"
	"database/sql"
	"fmt"
)

const metadataChunkSize = 1000

var metadataColumns = []string{
	"url", "etag", "content_length", "last_modified", "expires", "last_checked", "latest_title",
}

type metadataRow struct {
	URL           string         `db:"url"`
	ETag          sql.NullString `db:"etag"`
	ContentLength sql.NullInt64  `db:"content_length"`
	LastModified  NullTimestamp  `db:"last_modified"`
	Expires       NullTimestamp  `db:"expires"`
	LastChecked   Timestamp      `db:"last_checked"`
	LatestTitle   sql.NullString `db:"latest_title"`
}

func (row metadataRow) toMetadata() Metadata {
	return Metadata{
		URL:           row.URL,
		ETag:          row.ETag.String,
		ContentLength: row.ContentLength.Int64,
		LastModified:  row.LastModified.Ptr(),
		Expires:       row.Expires.Ptr(),
		LastChecked:   row.LastChecked.Time,
		LatestTitle:   row.LatestTitle.String,
	}
}

// MetadataRepository stores the revalidation state of source URLs
type MetadataRepository struct {
	db *DB
}

// NewMetadataRepository creates a new metadata repository
func NewMetadataRepository(db *DB) *MetadataRepository {
	return &MetadataRepository{db: db}
}

// GetMetadata loads the records of exactly the given URLs in one query.
// URLs without a record are absent from the result.
func (r *MetadataRepository) GetMetadata(ctx context.Context, urls []string) (map[string]Metadata, error) {
	result := make(map[string]Metadata, len(urls))
	if len(urls) == 0 {
		return result, nil
	}

	query, args := Select(metadataColumns...).
		From("feed_metadata").
		WhereExpr(r.db.dialect.InStrings("url", urls)).
		Build(r.db.dialect.BindType())

	var rows []metadataRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query feed metadata: %w", err)
	}

	for _, row := range rows {
		result[row.URL] = row.toMetadata()
	}
	return result, nil
}

// UpsertMetadata writes all records in one transaction. Every field is
// overwritten except last_checked, which never moves backwards.
func (r *MetadataRepository) UpsertMetadata(ctx context.Context, records []Metadata) error {
	records = latestMetadata(records)
	if len(records) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for start := 0; start < len(records); start += metadataChunkSize {
		end := min(start+metadataChunkSize, len(records))
		query, args := r.buildUpsert(records[start:end])
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to upsert feed metadata: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit feed metadata: %w", err)
	}
	return nil
}

func (r *MetadataRepository) buildUpsert(records []Metadata) (string, []any) {
	d := r.db.dialect
	b := Insert("feed_metadata", metadataColumns...)
	for _, m := range records {
		var contentLength any
		if m.ContentLength > 0 {
			contentLength = m.ContentLength
		}
		b.Values(
			m.URL,
			nullString(m.ETag),
			contentLength,
			nullTime(d, m.LastModified),
			nullTime(d, m.Expires),
			d.Time(m.LastChecked),
			nullString(m.LatestTitle),
		)
	}

	return b.OnConflictDoUpdate([]string{"url"},
		Excluded("etag"),
		Excluded("content_length"),
		Excluded("last_modified"),
		Excluded("expires"),
		Assignment{Column: "last_checked", Expr: d.Greatest("feed_metadata.last_checked", "excluded.last_checked")},
		Excluded("latest_title"),
	).Build(d.BindType())
}

// latestMetadata keeps the last record per URL; a single INSERT cannot touch
// the same conflict key twice.
func latestMetadata(records []Metadata) []Metadata {
	index := make(map[string]int, len(records))
	out := make([]Metadata, 0, len(records))
	for _, m := range records {
		if i, ok := index[m.URL]; ok {
			out[i] = m
			continue
		}
		index[m.URL] = len(out)
		out = append(out, m)
	}
	return out
}
