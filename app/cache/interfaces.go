package cache

import (
	"context"
	"crypto/sha256"
	"fmt"
)

// Cache is a short-lived byte cache used to absorb bursts of identical reads.
// Entries must never be served past their TTL. It is not a correctness
// mechanism: a miss always falls through to the database.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	DeletePrefix(ctx context.Context, prefix string) error
	Close() error
}

// PagePrefix returns the key prefix shared by all cached pages of a category.
func PagePrefix(categoryID int64) string {
	return fmt.Sprintf("page:%d:", categoryID)
}

// PageKey generates a consistent cache key for one page request.
func PageKey(categoryID int64, parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%s%x", PagePrefix(categoryID), h.Sum(nil)[:8])
}
