package database

import (
	"context"
)

type EntryStore interface {
	UpsertEntries(ctx context.Context, entries []Entry) (int64, error)
	GetPage(ctx context.Context, q PageQuery) ([]Entry, *Cursor, error)
}

type MetadataStore interface {
	GetMetadata(ctx context.Context, urls []string) (map[string]Metadata, error)
	UpsertMetadata(ctx context.Context, records []Metadata) error
}

type FeedStore interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	AddCategory(ctx context.Context, name string) (*Category, error)
	RemoveCategory(ctx context.Context, id int64) (bool, error)

	ListSources(ctx context.Context, categoryID int64) ([]Source, error)
	GetSourceURLs(ctx context.Context, categoryID int64) ([]string, error)
	AddSource(ctx context.Context, categoryID int64, name, url string) (*Source, error)
	RemoveSource(ctx context.Context, id int64) (bool, error)
	RemoveSourceByURL(ctx context.Context, categoryID int64, url string) (bool, error)
}

var (
	_ EntryStore    = (*EntryRepository)(nil)
	_ MetadataStore = (*MetadataRepository)(nil)
	_ FeedStore     = (*FeedRepository)(nil)
)
