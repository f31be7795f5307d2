package feed

import (
	"html"
	"log/slog"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/lysyi3m/rss-sync/app/database"
)

// Normalizer turns parsed items into canonical entries. It is safe for
// concurrent use.
type Normalizer struct {
	media  *MediaCache
	policy *bluemonday.Policy
}

// NewNormalizer creates a normalizer; media may be nil to disable memoization.
func NewNormalizer(media *MediaCache) *Normalizer {
	return &Normalizer{
		media:  media,
		policy: bluemonday.StrictPolicy(),
	}
}

// Normalize builds the canonical entry for item. It returns false when the
// item has no link or no resolvable date.
func (n *Normalizer) Normalize(item Item, sourceURL string, categoryID int64, feedTitle string) (database.Entry, bool) {
	if item.Link == "" {
		slog.Debug("Skipping entry without link", "source", sourceURL, "title", item.Title)
		return database.Entry{}, false
	}

	published, ok := ResolveDate(item)
	if !ok {
		slog.Warn("Skipping entry without a parseable date", "source", sourceURL, "link", item.Link,
			"published", item.Published, "updated", item.Updated, "dc_date", item.DCDate)
		return database.Entry{}, false
	}

	media := n.extractMedia(item)

	tags := item.Categories
	if tags == nil {
		tags = []string{}
	}

	entry := database.Entry{
		OriginalLink: item.Link,
		CategoryID:   categoryID,
		Title:        item.Title,
		Content:      n.content(item),
		AdditionalInfo: database.AdditionalInfo{
			Creator: item.Creator,
			Tags:    tags,
			WebName: WebName(sourceURL, feedTitle, item.Creator),
		},
		PublishedDate: published,
		SourceURL:     sourceURL,
	}
	if media.Thumbnail != "" {
		entry.Thumbnail = &media.Thumbnail
	}
	if media.VideoID != "" {
		entry.VideoID = &media.VideoID
	}

	return entry, true
}

// NormalizeAll normalizes items, dropping the ones that are rejected.
func (n *Normalizer) NormalizeAll(items []Item, sourceURL string, categoryID int64, feedTitle string) []database.Entry {
	entries := make([]database.Entry, 0, len(items))
	for _, item := range items {
		if entry, ok := n.Normalize(item, sourceURL, categoryID, feedTitle); ok {
			entries = append(entries, entry)
		}
	}
	return entries
}

func (n *Normalizer) extractMedia(item Item) Media {
	if n.media == nil {
		return ExtractMedia(item)
	}

	key := mediaKey(item)
	if m, ok := n.media.Get(key); ok {
		return m
	}
	m := ExtractMedia(item)
	n.media.Add(key, m)
	return m
}

func (n *Normalizer) content(item Item) string {
	if content := strings.TrimSpace(item.Content); content != "" {
		return content
	}
	return n.StripHTML(item.Description)
}

// StripHTML reduces an HTML fragment to its text.
func (n *Normalizer) StripHTML(s string) string {
	text := html.UnescapeString(n.policy.Sanitize(s))
	return strings.Join(strings.Fields(text), " ")
}
