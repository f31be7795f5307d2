package feed

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const videoThumbnailURL = "https://img.youtube.com/vi/%s/hqdefault.jpg"

// Media is the visual attachment of an entry.
type Media struct {
	Thumbnail string
	VideoID   string
}

// MediaCache memoizes media extraction for items that are seen repeatedly,
// such as unchanged entries of a feed that is refetched every cycle.
type MediaCache = expirable.LRU[string, Media]

func NewMediaCache(size int, ttl time.Duration) *MediaCache {
	return expirable.NewLRU[string, Media](size, nil, ttl)
}

func mediaKey(item Item) string {
	h := sha256.New()
	for _, part := range []string{item.Link, item.Description, item.Content} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ExtractMedia finds the thumbnail and video id of an item. Explicit media
// wins over a video thumbnail, which wins over the first image of the HTML.
func ExtractMedia(item Item) Media {
	m := Media{VideoID: VideoID(item.Link)}

	m.Thumbnail = explicitThumbnail(item)
	if m.Thumbnail == "" && m.VideoID != "" {
		m.Thumbnail = fmt.Sprintf(videoThumbnailURL, m.VideoID)
	}
	if m.Thumbnail == "" {
		m.Thumbnail = firstImage(item.Content)
	}
	if m.Thumbnail == "" {
		m.Thumbnail = firstImage(item.Description)
	}

	return m
}

func explicitThumbnail(item Item) string {
	if item.MediaThumbnail != "" {
		return item.MediaThumbnail
	}
	if item.ImageURL != "" {
		return item.ImageURL
	}
	if item.EnclosureURL != "" && strings.HasPrefix(item.EnclosureType, "image/") {
		return item.EnclosureURL
	}
	return ""
}

// VideoID extracts the id of a YouTube watch, short or youtu.be link.
func VideoID(link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimPrefix(host, "m.")

	switch host {
	case "youtube.com", "music.youtube.com":
		if u.Path == "/watch" {
			return u.Query().Get("v")
		}
		if id, ok := strings.CutPrefix(u.Path, "/shorts/"); ok {
			return firstSegment(id)
		}
		if id, ok := strings.CutPrefix(u.Path, "/embed/"); ok {
			return firstSegment(id)
		}
	case "youtu.be":
		return firstSegment(strings.TrimPrefix(u.Path, "/"))
	}

	return ""
}

func firstSegment(path string) string {
	id, _, _ := strings.Cut(path, "/")
	return id
}

func firstImage(html string) string {
	if !strings.Contains(html, "<img") {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var src string
	doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if v, ok := s.Attr("src"); ok && strings.TrimSpace(v) != "" {
			src = strings.TrimSpace(v)
			return false
		}
		return true
	})
	return src
}
