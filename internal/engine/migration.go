package engine

import (
	"context"
	"fmt"
)

// Migrate copies documents from src to dst, preserving ids.
// With no collections given, every collection in src is copied.
// This works for:
// - Embedded -> Postgres (the "upgrade")
// - Postgres -> Embedded (backup/offline)
func Migrate(ctx context.Context, src Store, dst Importer, collections ...string) (int, error) {
	if len(collections) == 0 {
		var err error
		collections, err = src.Collections(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list collections: %w", err)
		}
	}

	copied := 0
	for _, c := range collections {
		docs, err := src.Query(ctx, c, Query{})
		if err != nil {
			return copied, fmt.Errorf("failed to read collection %s: %w", c, err)
		}
		for _, d := range docs {
			if err := dst.Put(ctx, c, d); err != nil {
				return copied, fmt.Errorf("failed to write %s/%s: %w", c, d.ID, err)
			}
			copied++
		}
	}
	return copied, nil
}

// Importer writes documents with caller-chosen ids, replacing any existing
// document with the same id.
type Importer interface {
	Put(ctx context.Context, collection string, doc Document) error
}
