package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Persistence handles the disk I/O for the MemStore. Each collection is kept
// in its own JSON file keyed by document id.
type Persistence struct {
	DataDir string
	logger  *log.Logger
	mu      sync.Mutex // Protects concurrent writes to the filesystem
	written map[string]uint64
}

// NewPersistence initializes a persistence handler. A nil logger uses the
// default charmbracelet logger.
func NewPersistence(dir string, logger *log.Logger) (*Persistence, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Persistence{DataDir: dir, logger: logger, written: make(map[string]uint64)}, nil
}

// SaveCollection writes a single collection to a JSON file atomically.
func (p *Persistence) SaveCollection(collection string, docs map[string]map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save(collection, docs)
}

// SaveVersion is SaveCollection for background writers: a snapshot older
// than the last one written for the collection is dropped.
func (p *Persistence) SaveVersion(collection string, version uint64, docs map[string]map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if version <= p.written[collection] {
		return
	}
	if err := p.save(collection, docs); err != nil {
		p.logger.Error("persist collection", "collection", collection, "err", err)
		return
	}
	p.written[collection] = version
}

func (p *Persistence) save(collection string, docs map[string]map[string]any) error {
	if docs == nil {
		docs = map[string]map[string]any{}
	}
	filePath := filepath.Join(p.DataDir, collection+".json")
	tempPath := filePath + ".tmp"

	bytes, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(tempPath, bytes, 0644); err != nil {
		return err
	}
	// Readers see either the old file or the new one, never a partial write.
	return os.Rename(tempPath, filePath)
}

// LoadAll returns all collections found in the data directory.
// Unreadable or corrupt files are skipped with a warning.
func (p *Persistence) LoadAll() (map[string]map[string]map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	allData := make(map[string]map[string]map[string]any)

	files, err := os.ReadDir(p.DataDir)
	if err != nil {
		return nil, err
	}

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		collection := strings.TrimSuffix(file.Name(), ".json")

		content, err := os.ReadFile(filepath.Join(p.DataDir, file.Name()))
		if err != nil {
			p.logger.Warn("could not read collection file", "file", file.Name(), "err", err)
			continue
		}

		var docs map[string]map[string]any
		if err := json.Unmarshal(content, &docs); err != nil {
			p.logger.Warn("could not unmarshal collection file", "file", file.Name(), "err", err)
			continue
		}
		allData[collection] = docs
	}
	return allData, nil
}
