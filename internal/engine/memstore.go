package engine

import (
	"cmp"
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemStore is a thread-safe in-process document store.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]data
	data      map[string]map[string]map[string]any
	unique    map[string]map[string]struct{}
	versions  map[string]uint64
	persister *Persistence
	wg        sync.WaitGroup
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemStore(initialData map[string]map[string]map[string]any, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]map[string]any)
	}
	return &MemStore{
		data:      initialData,
		unique:    make(map[string]map[string]struct{}),
		versions:  make(map[string]uint64),
		persister: p,
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// --- Interface Implementation ---

func (m *MemStore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.data[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: copyData(doc)}, nil
}

func (m *MemStore) Query(_ context.Context, collection string, q Query) ([]Document, error) {
	filters := make([]Filter, len(q.Where))
	for i, f := range q.Where {
		v, err := normalizeValue(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		filters[i] = Filter{Field: f.Field, Value: v}
	}

	m.mu.RLock()
	var out []Document
	for id, doc := range m.data[collection] {
		if matches(doc, filters) {
			out = append(out, Document{ID: id, Data: copyData(doc)})
		}
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != "" {
			c := compareValues(out[i].Data[q.OrderBy], out[j].Data[q.OrderBy])
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemStore) Insert(_ context.Context, collection string, data map[string]any) (Document, error) {
	doc, err := normalize(data)
	if err != nil {
		return Document{}, err
	}
	delete(doc, "id")

	m.mu.Lock()
	for field := range m.unique[collection] {
		if m.taken(collection, field, doc[field]) {
			m.mu.Unlock()
			return Document{}, fmt.Errorf("%s.%s: %w", collection, field, ErrDuplicate)
		}
	}

	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	id := uuid.NewString()
	m.data[collection][id] = doc

	snapshot, version := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, version, snapshot)
	return Document{ID: id, Data: copyData(doc)}, nil
}

// Put stores doc under its own id, replacing any existing document.
func (m *MemStore) Put(_ context.Context, collection string, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("put %s: empty document id", collection)
	}
	data, err := normalize(doc.Data)
	if err != nil {
		return err
	}
	delete(data, "id")

	m.mu.Lock()
	for field := range m.unique[collection] {
		for id, other := range m.data[collection] {
			if id != doc.ID && data[field] != nil && reflect.DeepEqual(other[field], data[field]) {
				m.mu.Unlock()
				return fmt.Errorf("%s.%s: %w", collection, field, ErrDuplicate)
			}
		}
	}
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]map[string]any)
	}
	m.data[collection][doc.ID] = data

	snapshot, version := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, version, snapshot)
	return nil
}

func (m *MemStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	patch, err := normalize(fields)
	if err != nil {
		return err
	}
	delete(patch, "id")

	m.mu.Lock()
	doc, ok := m.data[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for field := range m.unique[collection] {
		v, set := patch[field]
		if set && !reflect.DeepEqual(doc[field], v) && m.taken(collection, field, v) {
			m.mu.Unlock()
			return fmt.Errorf("%s.%s: %w", collection, field, ErrDuplicate)
		}
	}
	for k, v := range patch {
		doc[k] = v
	}

	snapshot, version := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, version, snapshot)
	return nil
}

func (m *MemStore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	if _, ok := m.data[collection][id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.data[collection], id)

	snapshot, version := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, version, snapshot)
	return nil
}

// EnsureUnique declares field unique within collection. It fails with
// ErrDuplicate if existing documents already collide.
func (m *MemStore) EnsureUnique(_ context.Context, collection, field string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make([]any, 0, len(m.data[collection]))
	for _, doc := range m.data[collection] {
		v, ok := doc[field]
		if !ok {
			continue
		}
		for _, s := range seen {
			if reflect.DeepEqual(s, v) {
				return fmt.Errorf("%s.%s: %w", collection, field, ErrDuplicate)
			}
		}
		seen = append(seen, v)
	}

	if m.unique[collection] == nil {
		m.unique[collection] = make(map[string]struct{})
	}
	m.unique[collection][field] = struct{}{}
	return nil
}

func (m *MemStore) Collections(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	for name := range m.data {
		list = append(list, name)
	}
	sort.Strings(list)
	return list, nil
}

// taken reports whether any document in collection has field equal to v.
// It MUST be called while holding m.mu.
func (m *MemStore) taken(collection, field string, v any) bool {
	if v == nil {
		return false
	}
	for _, doc := range m.data[collection] {
		if reflect.DeepEqual(doc[field], v) {
			return true
		}
	}
	return false
}

// copyCollection creates a deep copy of a collection's documents.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyCollection(collection string) map[string]map[string]any {
	original, ok := m.data[collection]
	if !ok {
		return nil
	}
	out := make(map[string]map[string]any, len(original))
	for id, doc := range original {
		out[id] = copyData(doc)
	}
	return out
}

// snapshot copies a collection and bumps its version.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) snapshot(collection string) (map[string]map[string]any, uint64) {
	m.versions[collection]++
	return m.copyCollection(collection), m.versions[collection]
}

// persist saves a snapshot in the background. Snapshots older than one
// already on disk are discarded by the persister.
func (m *MemStore) persist(collection string, version uint64, snapshot map[string]map[string]any) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.persister.SaveVersion(collection, version, snapshot)
	}()
}

func copyData(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

func matches(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := doc[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

// compareValues orders JSON scalars. nil sorts first; mismatched types fall
// back to their formatted representation.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			return cmp.Compare(av, bv)
		}
	case float64:
		if bv, ok := b.(float64); ok {
			return cmp.Compare(av, bv)
		}
	case bool:
		if bv, ok := b.(bool); ok {
			switch {
			case av == bv:
				return 0
			case !av:
				return -1
			default:
				return 1
			}
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}


var (
	_ Store    = (*MemStore)(nil)
	_ Importer = (*MemStore)(nil)
)
