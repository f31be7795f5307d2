package feed

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ResolveDate picks the first usable date among published, updated and
// dc:date. A value the feed parser understood wins; otherwise the raw text is
// parsed leniently, with zone-less times taken as UTC.
func ResolveDate(item Item) (time.Time, bool) {
	candidates := []struct {
		parsed *time.Time
		raw    string
	}{
		{item.PublishedParsed, item.Published},
		{item.UpdatedParsed, item.Updated},
		{nil, item.DCDate},
	}

	for _, c := range candidates {
		if c.parsed != nil && !c.parsed.IsZero() {
			return *c.parsed, true
		}
		raw := strings.TrimSpace(c.raw)
		if raw == "" {
			continue
		}
		if t, err := dateparse.ParseIn(raw, time.UTC); err == nil && !t.IsZero() {
			return t, true
		}
	}

	return time.Time{}, false
}

// Prune keeps the items published strictly after since. A nil since keeps
// everything; with a since, undated items are dropped.
func Prune(items []Item, since *time.Time) []Item {
	if since == nil {
		return items
	}

	kept := make([]Item, 0, len(items))
	for _, item := range items {
		date, ok := ResolveDate(item)
		if ok && date.After(*since) {
			kept = append(kept, item)
		}
	}
	return kept
}

// Newest returns the item with the latest resolved date.
func Newest(items []Item) (Item, time.Time, bool) {
	var (
		newest Item
		best   time.Time
		found  bool
	)
	for _, item := range items {
		date, ok := ResolveDate(item)
		if !ok {
			continue
		}
		if !found || date.After(best) {
			newest, best, found = item, date, true
		}
	}
	return newest, best, found
}
