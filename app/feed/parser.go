package feed

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
	ext "github.com/mmcdole/gofeed/extensions"
)

// Parser turns RSS, Atom and JSON feed documents into Items. It is safe for
// concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	// gofeed.Parser fills its translators lazily, so each call gets its own.
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{Title: strings.TrimSpace(feed.Title)}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		items = append(items, p.normalizeItem(item))
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		Title:           strings.TrimSpace(item.Title),
		Link:            strings.TrimSpace(item.Link),
		Description:     item.Description,
		Content:         item.Content,
		Published:       item.Published,
		PublishedParsed: item.PublishedParsed,
		Updated:         item.Updated,
		UpdatedParsed:   item.UpdatedParsed,
		Creator:         p.extractCreator(item),
		Categories:      p.extractCategories(item),
		MediaThumbnail:  mediaThumbnail(item.Extensions),
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Date) > 0 {
		normalized.DCDate = item.DublinCoreExt.Date[0]
	}

	if item.Image != nil {
		normalized.ImageURL = item.Image.URL
	}

	// RSS 2.0 allows a single enclosure per item
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		normalized.EnclosureURL = item.Enclosures[0].URL
		normalized.EnclosureType = item.Enclosures[0].Type
	}

	return normalized
}

func (p *Parser) extractCreator(item *gofeed.Item) string {
	people := item.Authors
	if len(people) == 0 && item.Author != nil {
		people = []*gofeed.Person{item.Author}
	}

	for _, person := range people {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			return name
		}
		if email := strings.TrimSpace(person.Email); email != "" {
			return email
		}
	}

	if item.DublinCoreExt != nil {
		for _, creator := range item.DublinCoreExt.Creator {
			if creator = strings.TrimSpace(creator); creator != "" {
				return creator
			}
		}
	}

	return ""
}

func (p *Parser) extractCategories(item *gofeed.Item) []string {
	categories := make([]string, 0, len(item.Categories))
	for _, c := range item.Categories {
		if c = strings.TrimSpace(c); c != "" {
			categories = append(categories, c)
		}
	}
	return categories
}

// mediaThumbnail reads the Media RSS thumbnail, either top-level or nested in
// a media:group.
func mediaThumbnail(extensions ext.Extensions) string {
	media, ok := extensions["media"]
	if !ok {
		return ""
	}

	if url := firstAttr(media["thumbnail"], "url"); url != "" {
		return url
	}

	for _, group := range media["group"] {
		if url := firstAttr(group.Children["thumbnail"], "url"); url != "" {
			return url
		}
	}

	for _, content := range media["content"] {
		if content.Attrs["medium"] == "image" && content.Attrs["url"] != "" {
			return content.Attrs["url"]
		}
	}

	return ""
}

func firstAttr(elements []ext.Extension, attr string) string {
	for _, e := range elements {
		if v := strings.TrimSpace(e.Attrs[attr]); v != "" {
			return v
		}
	}
	return ""
}
