package database

import (
	"testing"
)

func TestAddCategoryIsIdempotent(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		ctx := t.Context()
		repo := NewFeedRepository(db)

		first, err := repo.AddCategory(ctx, "tech")
		if err != nil {
			t.Fatalf("AddCategory failed: %v", err)
		}
		second, err := repo.AddCategory(ctx, "tech")
		if err != nil {
			t.Fatalf("AddCategory failed: %v", err)
		}
		if first.ID != second.ID {
			t.Errorf("Expected the same category id, got %d and %d", first.ID, second.ID)
		}

		categories, err := repo.ListCategories(ctx)
		if err != nil {
			t.Fatalf("ListCategories failed: %v", err)
		}
		if len(categories) != 1 {
			t.Errorf("Expected 1 category, got %d", len(categories))
		}

		missing, err := repo.GetCategory(ctx, first.ID+100)
		if err != nil {
			t.Fatalf("GetCategory failed: %v", err)
		}
		if missing != nil {
			t.Errorf("Expected nil for a missing category, got %+v", missing)
		}
	})
}

func TestSourcesLifecycle(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		ctx := t.Context()
		repo := NewFeedRepository(db)
		metadata := NewMetadataRepository(db)

		tech := mustCategory(t, db, "tech")
		news := mustCategory(t, db, "news")

		shared := "https://shared.test/feed"
		only := "https://only.test/feed"

		s1, err := repo.AddSource(ctx, tech.ID, "Shared", shared)
		if err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}
		again, err := repo.AddSource(ctx, tech.ID, "Renamed", shared)
		if err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}
		if again.ID != s1.ID || again.Name != "Shared" {
			t.Errorf("Expected the existing source to be returned, got %+v", again)
		}
		if _, err := repo.AddSource(ctx, news.ID, "Shared", shared); err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}
		s3, err := repo.AddSource(ctx, tech.ID, "Only", only)
		if err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}

		urls, err := repo.GetSourceURLs(ctx, tech.ID)
		if err != nil {
			t.Fatalf("GetSourceURLs failed: %v", err)
		}
		if len(urls) != 2 {
			t.Errorf("Expected 2 source urls, got %v", urls)
		}

		err = metadata.UpsertMetadata(ctx, []Metadata{
			{URL: shared, LastChecked: baseTime},
			{URL: only, LastChecked: baseTime},
		})
		if err != nil {
			t.Fatalf("UpsertMetadata failed: %v", err)
		}

		removed, err := repo.RemoveSource(ctx, s1.ID)
		if err != nil {
			t.Fatalf("RemoveSource failed: %v", err)
		}
		if !removed {
			t.Error("Expected the source to be removed")
		}
		removed, err = repo.RemoveSourceByURL(ctx, tech.ID, only)
		if err != nil {
			t.Fatalf("RemoveSourceByURL failed: %v", err)
		}
		if !removed {
			t.Error("Expected the source to be removed by url")
		}

		got, err := metadata.GetMetadata(ctx, []string{shared, only})
		if err != nil {
			t.Fatalf("GetMetadata failed: %v", err)
		}
		if _, ok := got[shared]; !ok {
			t.Error("Expected metadata of a url still used by another category to be kept")
		}
		if _, ok := got[only]; ok {
			t.Error("Expected metadata of an unused url to be deleted")
		}

		removed, err = repo.RemoveSource(ctx, s3.ID)
		if err != nil {
			t.Fatalf("RemoveSource failed: %v", err)
		}
		if removed {
			t.Error("Expected removing an already removed source to report false")
		}
	})
}

func TestRemoveCategoryDeletesEntriesAndSources(t *testing.T) {
	forEachDB(t, func(t *testing.T, db *DB) {
		ctx := t.Context()
		repo := NewFeedRepository(db)
		entries := NewEntryRepository(db)

		tech := mustCategory(t, db, "tech")
		if _, err := repo.AddSource(ctx, tech.ID, "", "https://a.test/feed"); err != nil {
			t.Fatalf("AddSource failed: %v", err)
		}
		if _, err := entries.UpsertEntries(ctx, []Entry{testEntry(tech.ID, 1, baseTime)}); err != nil {
			t.Fatalf("UpsertEntries failed: %v", err)
		}

		removed, err := repo.RemoveCategory(ctx, tech.ID)
		if err != nil {
			t.Fatalf("RemoveCategory failed: %v", err)
		}
		if !removed {
			t.Error("Expected the category to be removed")
		}

		count := countEntries(t, db, tech.ID)
		if count != 0 {
			t.Errorf("Expected entries to be deleted, got %d", count)
		}

		sources, err := repo.ListSources(ctx, tech.ID)
		if err != nil {
			t.Fatalf("ListSources failed: %v", err)
		}
		if len(sources) != 0 {
			t.Errorf("Expected sources to be deleted, got %d", len(sources))
		}

		removed, err = repo.RemoveCategory(ctx, tech.ID)
		if err != nil {
			t.Fatalf("RemoveCategory failed: %v", err)
		}
		if removed {
			t.Error("Expected a second removal to report false")
		}
	})
}
