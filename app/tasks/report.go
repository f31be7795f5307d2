package tasks

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// URLSet is a set of source URLs.
type URLSet map[string]struct{}

func (s URLSet) Add(url string) {
	s[url] = struct{}{}
}

func (s URLSet) Has(url string) bool {
	_, ok := s[url]
	return ok
}

// Sorted returns the members in lexical order.
func (s URLSet) Sorted() []string {
	urls := make([]string, 0, len(s))
	for url := range s {
		urls = append(urls, url)
	}
	slices.Sort(urls)
	return urls
}

// Report summarizes one ingestion run. Every input URL lands in exactly one
// of the four sets.
type Report struct {
	RunID       string        `json:"run_id"`
	CategoryID  int64         `json:"category_id"`
	Failed      URLSet        `json:"-"`
	RateLimited URLSet        `json:"-"`
	Updated     URLSet        `json:"-"`
	Unchanged   URLSet        `json:"-"`
	Inserted    int64         `json:"inserted"`
	Duration    time.Duration `json:"-"`
}

func newReport(categoryID int64) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		CategoryID:  categoryID,
		Failed:      URLSet{},
		RateLimited: URLSet{},
		Updated:     URLSet{},
		Unchanged:   URLSet{},
	}
}
