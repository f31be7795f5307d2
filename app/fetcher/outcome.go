package fetcher

import (
	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/feed"
)

type Outcome int

const (
	// Unchanged: nothing new since the stored validators.
	Unchanged Outcome = iota
	// Updated: the feed has entries newer than the stored state.
	Updated
	// Failed: transport error, non-success status or unparseable document.
	Failed
	// RateLimited: the URL was fetched within the cooldown window; no request was made.
	RateLimited
)

func (o Outcome) String() string {
	switch o {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Failed:
		return "failed"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Result is the outcome of fetching one source.
type Result struct {
	URL        string
	Outcome    Outcome
	StatusCode int // 0 when no response was received

	// Feed and Items are set for Updated only. Items are already pruned to
	// the ones newer than the prior last_modified.
	Feed  *feed.Metadata
	Items []feed.Item

	// Metadata is the record to persist, nil when there is nothing to write.
	Metadata *database.Metadata

	Err error
}
