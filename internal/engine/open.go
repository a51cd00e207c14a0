package engine

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
)

// Backend is a Store that can receive migrated documents and must be closed.
type Backend interface {
	Store
	Importer
	Close() error
}

// Options selects a backend. DatabaseURL wins over DataDir; with neither the
// store lives in memory only.
type Options struct {
	DatabaseURL string
	DataDir     string
	Logger      *log.Logger
}

// Open returns the backend described by opts.
func Open(ctx context.Context, opts Options) (Backend, error) {
	if opts.DatabaseURL != "" {
		return OpenPostgres(ctx, opts.DatabaseURL)
	}
	if opts.DataDir == "" {
		return NewMemStore(nil, nil), nil
	}
	return OpenDir(opts.DataDir, opts.Logger)
}

// OpenDir loads a MemStore from the collection files in dir and persists
// further writes there.
func OpenDir(dir string, logger *log.Logger) (*MemStore, error) {
	p, err := NewPersistence(dir, logger)
	if err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}
	data, err := p.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	return NewMemStore(data, p), nil
}

// Close waits for pending writes.
func (m *MemStore) Close() error {
	m.Wait()
	return nil
}

var (
	_ Backend = (*MemStore)(nil)
	_ Backend = (*PGStore)(nil)
)
