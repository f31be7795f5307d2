package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lysyi3m/rss-sync/app/database"
	"github.com/lysyi3m/rss-sync/app/feed"
)

const (
	DefaultMaxBodyBytes = 10 << 20
	defaultLimiterSize  = 10000
)

var errBodyTooLarge = errors.New("response body too large")

type Options struct {
	Timeout      time.Duration
	RateWindow   time.Duration // per-URL cooldown; <= 0 disables it
	MaxBodyBytes int64
	UserAgent    string
	LimiterSize  int
}

// Fetcher performs conditional GETs of feed sources. It is safe for
// concurrent use.
type Fetcher struct {
	client *http.Client
	parser *feed.Parser
	opts   Options

	mu      sync.Mutex
	limiter *expirable.LRU[string, time.Time]

	now func() time.Time
}

func New(client *http.Client, parser *feed.Parser, opts Options) *Fetcher {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.LimiterSize <= 0 {
		opts.LimiterSize = defaultLimiterSize
	}

	f := &Fetcher{
		client: client,
		parser: parser,
		opts:   opts,
		now:    time.Now,
	}
	if opts.RateWindow > 0 {
		f.limiter = expirable.NewLRU[string, time.Time](opts.LimiterSize, nil, opts.RateWindow)
	}
	return f
}

// allow records an attempt for url and reports whether it is outside the
// cooldown window.
func (f *Fetcher) allow(url string) bool {
	if f.limiter == nil {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.limiter.Peek(url); ok {
		return false
	}
	f.limiter.Add(url, f.now())
	return true
}

// Fetch retrieves url, revalidating against prior (nil when the URL was never
// fetched). Errors are reported in the result, never returned.
func (f *Fetcher) Fetch(ctx context.Context, url string, prior *database.Metadata) Result {
	res := Result{URL: url}

	if !f.allow(url) {
		res.Outcome = RateLimited
		return res
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return f.failed(res, prior, nil, fmt.Errorf("failed to create request: %w", err))
	}

	req.Header.Set("User-Agent", f.opts.UserAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, text/xml;q=0.8, */*;q=0.5")
	if prior != nil {
		if prior.ETag != "" {
			req.Header.Set("If-None-Match", prior.ETag)
		}
		if prior.LastModified != nil {
			req.Header.Set("If-Modified-Since", prior.LastModified.UTC().Format(http.TimeFormat))
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return f.failed(res, prior, nil, fmt.Errorf("failed to fetch feed: %w", err))
	}
	defer resp.Body.Close()

	res.StatusCode = resp.StatusCode

	if resp.StatusCode == http.StatusNotModified {
		res.Outcome = Unchanged
		res.Metadata = f.revalidated(url, prior, resp, 0)
		return res
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return f.failed(res, prior, resp, fmt.Errorf("HTTP error: %s", resp.Status))
	}

	if notModified(resp, prior) {
		res.Outcome = Unchanged
		res.Metadata = f.revalidated(url, prior, resp, 0)
		return res
	}

	body, err := f.readBody(resp)
	if err != nil {
		return f.failed(res, prior, resp, err)
	}

	metadata, items, err := f.parser.Run(body)
	if err != nil {
		return f.failed(res, prior, resp, err)
	}

	next := f.revalidated(url, prior, resp, len(body))
	res.Metadata = next

	newest, newestDate, ok := feed.Newest(items)
	if !ok {
		slog.Debug("Feed has no dated entries", "url", url, "entries", len(items))
		res.Outcome = Unchanged
		return res
	}

	var since *time.Time
	if prior != nil {
		since = prior.LastModified
		if prior.LatestTitle == newest.Title && since != nil && !newestDate.After(*since) {
			res.Outcome = Unchanged
			return res
		}
	}

	if since == nil || newestDate.After(*since) {
		lastModified := newestDate.UTC()
		next.LastModified = &lastModified
	}
	next.LatestTitle = newest.Title

	res.Outcome = Updated
	res.Feed = metadata
	res.Items = feed.Prune(items, since)
	return res
}

func (f *Fetcher) readBody(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodyBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errBodyTooLarge, f.opts.MaxBodyBytes)
	}
	return body, nil
}

// notModified applies the response validators to the stored state. An ETag,
// when present, decides alone.
func notModified(resp *http.Response, prior *database.Metadata) bool {
	if prior == nil {
		return false
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		return prior.ETag != "" && etag == prior.ETag
	}

	if prior.LastModified != nil {
		if lastModified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
			return !lastModified.After(*prior.LastModified)
		}
	}

	return false
}

// revalidated derives the next metadata record from the response headers.
// Only the entry-derived fields are carried over from prior, except on a 304
// where the stored validators still hold unless the response replaces them.
func (f *Fetcher) revalidated(url string, prior *database.Metadata, resp *http.Response, bodyLen int) *database.Metadata {
	next := database.Metadata{URL: url}
	if prior != nil {
		next.LastModified = prior.LastModified
		next.LatestTitle = prior.LatestTitle
		if resp.StatusCode == http.StatusNotModified {
			next.ETag = prior.ETag
			next.Expires = prior.Expires
			next.ContentLength = prior.ContentLength
		}
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		next.ETag = etag
	}
	if expires, err := http.ParseTime(resp.Header.Get("Expires")); err == nil {
		expires = expires.UTC()
		next.Expires = &expires
	}
	if resp.ContentLength > 0 {
		next.ContentLength = resp.ContentLength
	} else if bodyLen > 0 {
		next.ContentLength = int64(bodyLen)
	}

	next.LastChecked = f.now().UTC()
	return &next
}

func (f *Fetcher) failed(res Result, prior *database.Metadata, resp *http.Response, err error) Result {
	res.Outcome = Failed
	res.Err = err

	switch {
	case prior != nil:
		next := *prior
		next.LastChecked = f.now().UTC()
		res.Metadata = &next
	case resp != nil:
		res.Metadata = &database.Metadata{URL: res.URL, LastChecked: f.now().UTC()}
	}

	slog.Debug("Fetch failed", "url", res.URL, "status", res.StatusCode, "error", err)
	return res
}
