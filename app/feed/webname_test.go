package feed

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDomainName(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"https://www.youtube.com/feeds/videos.xml?channel_id=1", "Youtube"},
		{"https://blog.example.co.uk/rss", "Example"},
		{"http://127.0.0.1:8080/feed", "127.0.0.1"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := DomainName(tt.url); got != tt.expected {
			t.Errorf("DomainName(%q): expected %q, got %q", tt.url, tt.expected, got)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio("Example", "example"); got != 1 {
		t.Errorf("Expected case-insensitive ratio 1, got %v", got)
	}
	if got := Ratio("abcd", "abcf"); math.Abs(got-0.75) > 1e-9 {
		t.Errorf("Expected ratio 0.75, got %v", got)
	}
	if got := Ratio("", "abc"); got != 0 {
		t.Errorf("Expected ratio 0 for an empty string, got %v", got)
	}
}

func TestWebName(t *testing.T) {
	tests := []struct {
		name      string
		sourceURL string
		feedTitle string
		creator   string
		expected  []string
	}{
		{
			name:      "distinct title is appended",
			sourceURL: "https://www.youtube.com/feeds/videos.xml",
			feedTitle: "Cooking With Jane",
			creator:   "Jane Doe",
			expected:  []string{"Youtube", "Cooking With Jane"},
		},
		{
			name:      "title similar to domain is dropped",
			sourceURL: "https://examples.com/rss",
			feedTitle: "Example",
			expected:  []string{"Examples"},
		},
		{
			name:      "title equal to creator is dropped",
			sourceURL: "https://medium.com/feed/@jane",
			feedTitle: "Jane Doe",
			creator:   "jane doe",
			expected:  []string{"Medium"},
		},
		{
			name:      "title similar to creator is dropped",
			sourceURL: "https://medium.com/feed/@jane",
			feedTitle: "Jane Does",
			creator:   "Jane Doe",
			expected:  []string{"Medium"},
		},
		{
			name:      "title exactly at the similarity cutoff is kept",
			sourceURL: "https://radar.com/feed",
			feedTitle: "Rader",
			expected:  []string{"Radar", "Rader"},
		},
		{
			name:      "empty title",
			sourceURL: "https://news.ycombinator.com/rss",
			expected:  []string{"Ycombinator"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := WebName(tt.sourceURL, tt.feedTitle, tt.creator)
			if diff := cmp.Diff(tt.expected, got); diff != "" {
				t.Errorf("Unexpected web name (-want +got):\n%s", diff)
			}
		})
	}
}
