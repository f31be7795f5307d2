package feed

import (
	"net"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// similarTitleRatio is the Levenshtein ratio above which a feed title is
// considered a repeat of the domain or creator name.
const similarTitleRatio = 0.8

// WebName builds the display names of a source: its capitalized registrable
// domain name, followed by the feed title when the title adds information.
func WebName(sourceURL, feedTitle, creator string) []string {
	var names []string

	domain := DomainName(sourceURL)
	if domain != "" {
		names = append(names, domain)
	}

	title := strings.TrimSpace(feedTitle)
	creator = strings.TrimSpace(creator)
	if title != "" &&
		Ratio(title, domain) <= similarTitleRatio &&
		Ratio(title, creator) <= similarTitleRatio &&
		!strings.EqualFold(title, creator) {
		names = append(names, title)
	}

	return dedupe(names)
}

// DomainName returns the capitalized first label of the registrable domain
// of rawURL, e.g. "Youtube" for https://www.youtube.com/feeds.
func DomainName(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return ""
	}
	if net.ParseIP(host) != nil {
		return host
	}

	name := host
	if etld1, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		name = etld1
	}
	label, _, _ := strings.Cut(name, ".")

	return cases.Title(language.Und).String(label)
}

// Ratio is the case-insensitive Levenshtein similarity of a and b in [0, 1].
func Ratio(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == "" || b == "" {
		return 0
	}

	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
