package engine

import (
	"encoding/json"
	"fmt"
)

// Decode converts a document into T. The document id is written to the "id"
// field so that records with an `json:"id"` tag receive it.
func Decode[T any](doc Document) (T, error) {
	var target T
	m := make(map[string]any, len(doc.Data)+1)
	for k, v := range doc.Data {
		m[k] = v
	}
	m["id"] = doc.ID

	bytes, err := json.Marshal(m)
	if err != nil {
		return target, err
	}
	if err := json.Unmarshal(bytes, &target); err != nil {
		return target, fmt.Errorf("decode document %s: %w", doc.ID, err)
	}
	return target, nil
}

// DecodeAll decodes every document in docs.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		v, err := Decode[T](d)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode converts v into document data, dropping the "id" field.
func Encode(v any) (map[string]any, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(bytes, &m); err != nil {
		return nil, err
	}
	delete(m, "id")
	return m, nil
}

// normalize round-trips data through JSON so stored values are always
// string, float64, bool, nil, []any or map[string]any.
func normalize(data map[string]any) (map[string]any, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any)
	if err := json.Unmarshal(bytes, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeValue(v any) (any, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	err = json.Unmarshal(bytes, &out)
	return out, err
}
