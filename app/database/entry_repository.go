package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// entryChunkSize keeps a single INSERT well under the bind parameter limits
// of both drivers (65535 for Postgres, 32766 for SQLite).
const entryChunkSize = 500

var entryColumns = []string{
	"id", "original_link", "category_id", "title", "content", "thumbnail",
	"video_id", "additional_info", "published_date", "url",
}

type entryRow struct {
	ID             int64          `db:"id"`
	OriginalLink   string         `db:"original_link"`
	CategoryID     int64          `db:"category_id"`
	Title          string         `db:"title"`
	Content        string         `db:"content"`
	Thumbnail      sql.NullString `db:"thumbnail"`
	VideoID        sql.NullString `db:"video_id"`
	AdditionalInfo AdditionalInfo `db:"additional_info"`
	PublishedDate  Timestamp      `db:"published_date"`
	URL            string         `db:"url"`
}

func (row entryRow) toEntry() Entry {
	e := Entry{
		ID:             row.ID,
		OriginalLink:   row.OriginalLink,
		CategoryID:     row.CategoryID,
		Title:          row.Title,
		Content:        row.Content,
		AdditionalInfo: row.AdditionalInfo,
		PublishedDate:  row.PublishedDate.Time,
		SourceURL:      row.URL,
	}
	if row.Thumbnail.Valid {
		e.Thumbnail = &row.Thumbnail.String
	}
	if row.VideoID.Valid {
		e.VideoID = &row.VideoID.String
	}
	if e.AdditionalInfo.Tags == nil {
		e.AdditionalInfo.Tags = []string{}
	}
	if e.AdditionalInfo.WebName == nil {
		e.AdditionalInfo.WebName = []string{}
	}
	return e
}

// EntryRepository handles database operations for feed entries
type EntryRepository struct {
	db *DB
}

// NewEntryRepository creates a new entry repository
func NewEntryRepository(db *DB) *EntryRepository {
	return &EntryRepository{db: db}
}

// UpsertEntries inserts entries whose original_link is not stored yet and
// returns the number of rows actually inserted. Existing rows are never
// modified. All chunks share one transaction.
func (r *EntryRepository) UpsertEntries(ctx context.Context, entries []Entry) (int64, error) {
	entries = uniqueEntries(entries)
	if len(entries) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	d := r.db.dialect
	var inserted int64
	for start := 0; start < len(entries); start += entryChunkSize {
		end := min(start+entryChunkSize, len(entries))

		b := Insert("feed_entries", entryColumns[1:]...)
		for _, e := range entries[start:end] {
			b.Values(
				e.OriginalLink,
				e.CategoryID,
				e.Title,
				e.Content,
				optionalString(e.Thumbnail),
				optionalString(e.VideoID),
				e.AdditionalInfo,
				d.Time(e.PublishedDate),
				e.SourceURL,
			)
		}
		query, args := b.OnConflictDoNothing("original_link").Build(d.BindType())

		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert entries: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to count inserted entries: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entries: %w", err)
	}

	return inserted, nil
}

// GetPage returns up to q.Limit entries of a category ordered newest first,
// strictly after q.Cursor. The next cursor is nil when the page is not full.
func (r *EntryRepository) GetPage(ctx context.Context, q PageQuery) ([]Entry, *Cursor, error) {
	if q.Limit <= 0 {
		return nil, nil, fmt.Errorf("page limit must be positive, got %d", q.Limit)
	}

	query, args := buildPageQuery(r.db.dialect, q)

	var rows []entryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, nil, fmt.Errorf("failed to query entries: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}

	var next *Cursor
	if len(entries) == q.Limit {
		last := entries[len(entries)-1]
		next = &Cursor{PublishedDate: last.PublishedDate, ID: last.ID}
	}

	return entries, next, nil
}

func buildPageQuery(d Dialect, q PageQuery) (string, []any) {
	b := Select(entryColumns...).
		From("feed_entries").
		Where("category_id = ?", q.CategoryID)

	if q.Cursor != nil {
		t := d.Time(q.Cursor.PublishedDate)
		b.Where("(published_date < ? OR (published_date = ? AND id < ?))", t, t, q.Cursor.ID)
	}

	if term := strings.TrimSpace(q.Search); term != "" {
		b.WhereExpr(searchPredicate(d, term, q.Threshold))
	}

	return b.OrderBy("published_date DESC", "id DESC").
		Limit(q.Limit).
		Build(d.BindType())
}

// searchPredicate matches rows whose title, content, creator or any tag is
// trigram-similar to term, or whose title, creator or source URL contains it.
func searchPredicate(d Dialect, term string, threshold float64) Expr {
	creator := d.JSONText("additional_info", "creator")
	pattern := "%" + escapeLike(term) + "%"

	similar := func(expr string) Expr {
		return Expr{SQL: "similarity(" + expr + ", ?) > ?", Args: []any{term, threshold}}
	}
	contains := func(expr string) Expr {
		return Expr{SQL: expr + " " + d.ILike() + ` ? ESCAPE '\'`, Args: []any{pattern}}
	}
	anyTag := Expr{
		SQL: d.JSONArrayExists("additional_info", "tags", func(elem string) string {
			return "similarity(" + elem + ", ?) > ?"
		}),
		Args: []any{term, threshold},
	}

	return Or(
		similar("title"),
		similar("content"),
		similar(creator),
		anyTag,
		contains("title"),
		contains(creator),
		contains("url"),
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// uniqueEntries drops repeated links, keeping the first occurrence.
func uniqueEntries(entries []Entry) []Entry {
	seen := make(map[string]struct{}, len(entries))
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.OriginalLink]; ok {
			continue
		}
		seen[e.OriginalLink] = struct{}{}
		out = append(out, e)
	}
	return out
}

func optionalString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
