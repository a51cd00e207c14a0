// Package engine implements the document store used by the todo services.
package engine

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrDuplicate is returned when an insert would violate a unique index.
	ErrDuplicate = errors.New("duplicate value for unique field")
)

// Document is a stored record. ID is generated by the store on insert and is
// not part of Data.
type Document struct {
	ID   string
	Data map[string]any
}

// Filter matches documents whose Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query selects documents from a single collection. Filters are AND-ed.
// A Limit of zero or less means no limit.
type Query struct {
	Where   []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where returns a query with a single equality filter.
func Where(field string, value any) Query {
	return Query{Where: []Filter{{Field: field, Value: value}}}
}

// --- Functional Interfaces (Interface Segregation) ---

// DocReader fetches single documents by id.
type DocReader interface {
	Get(ctx context.Context, collection, id string) (Document, error)
}

// DocWriter creates, patches and removes documents.
type DocWriter interface {
	Insert(ctx context.Context, collection string, data map[string]any) (Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
}

// Querier runs filtered, ordered queries.
type Querier interface {
	Query(ctx context.Context, collection string, q Query) ([]Document, error)
}

// Indexer declares unique constraints enforced on insert.
type Indexer interface {
	EnsureUnique(ctx context.Context, collection, field string) error
}

// Enumerator lists the collections held by a store.
type Enumerator interface {
	Collections(ctx context.Context) ([]string, error)
}

// Store is the complete document store contract. Both MemStore and PGStore
// implement it.
type Store interface {
	DocReader
	DocWriter
	Querier
	Indexer
	Enumerator
}
