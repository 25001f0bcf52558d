package kv

import (
	"context"
	"encoding/json"
	"fmt"
)

// Versioned is a decoded value together with the versionstamp it was read at
type Versioned[T any] struct {
	Key          Key
	Value        T
	Versionstamp Versionstamp
}

// Exists reports whether the key was present at read time
func (v Versioned[T]) Exists() bool {
	return v.Versionstamp != ""
}

// Marshal encodes a value for storage
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("kv: encode value: %w", err)
	}
	return data, nil
}

// GetJSON reads key and decodes its value into T
func GetJSON[T any](ctx context.Context, store Store, key Key) (Versioned[T], error) {
	result := Versioned[T]{Key: key}
	entry, err := store.Get(ctx, key)
	if err != nil {
		return result, err
	}
	if !entry.Exists() {
		return result, nil
	}
	if err := json.Unmarshal(entry.Value, &result.Value); err != nil {
		return result, fmt.Errorf("kv: decode %s: %w", key, err)
	}
	result.Versionstamp = entry.Versionstamp
	return result, nil
}

// ListJSON scans prefix and decodes every value into T, preserving key order
func ListJSON[T any](ctx context.Context, store Store, prefix Key) ([]Versioned[T], error) {
	entries, err := store.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	results := make([]Versioned[T], 0, len(entries))
	for _, entry := range entries {
		item := Versioned[T]{Key: entry.Key, Versionstamp: entry.Versionstamp}
		if err := json.Unmarshal(entry.Value, &item.Value); err != nil {
			return nil, fmt.Errorf("kv: decode %s: %w", entry.Key, err)
		}
		results = append(results, item)
	}
	return results, nil
}
