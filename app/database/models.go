package database

import (
	"time"
)

// Category groups the sources that are crawled and browsed together.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// Source is one configured feed URL. The table keeps its historical name, feeds.
type Source struct {
	ID         int64  `db:"id" json:"id"`
	Name       string `db:"name" json:"name"`
	URL        string `db:"url" json:"url"`
	CategoryID int64  `db:"category_id" json:"category_id"`
}

// Entry is the canonical, immutable record of one feed item.
type Entry struct {
	ID             int64          `json:"id"`
	OriginalLink   string         `json:"original_link"`
	CategoryID     int64          `json:"category_id"`
	Title          string         `json:"title"`
	Content        string         `json:"content"`
	Thumbnail      *string        `json:"thumbnail"`
	VideoID        *string        `json:"video_id"`
	AdditionalInfo AdditionalInfo `json:"additional_info"`
	PublishedDate  time.Time      `json:"published_date"`
	SourceURL      string         `json:"url"`
}

// Metadata is the revalidation state of one source URL. It always reflects
// the latest fetch attempt.
type Metadata struct {
	URL           string
	ETag          string
	ContentLength int64
	LastModified  *time.Time // newest published_date ingested from the source
	Expires       *time.Time
	LastChecked   time.Time
	LatestTitle   string
}

// Cursor is the keyset position of the last row of a page.
type Cursor struct {
	PublishedDate time.Time `json:"published_date"`
	ID            int64     `json:"id"`
}

type PageQuery struct {
	CategoryID int64
	Limit      int
	Cursor     *Cursor // nil for the first page
	Search     string  // empty for an unfiltered browse
	Threshold  float64 // minimum trigram similarity for fuzzy matches
}
