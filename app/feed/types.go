package feed

import "time"

// Metadata describes the channel a set of items came from.
type Metadata struct {
	Title string
}

// Item is a parsed entry before normalization. Date fields keep both the
// parser's interpretation and the raw text so that resolution can fall back
// to a lenient parser.
type Item struct {
	Title       string
	Link        string
	Description string // summary
	Content     string

	Published       string
	PublishedParsed *time.Time
	Updated         string
	UpdatedParsed   *time.Time
	DCDate          string // Dublin Core dc:date

	Creator    string // author name, else email
	Categories []string

	MediaThumbnail string // media:thumbnail, directly or inside media:group
	ImageURL       string
	EnclosureURL   string
	EnclosureType  string
}
