// Package kvstore is the profile's persistent key-value storage. Values are opaque bytes;
// callers store JSON. Reads and writes are synchronous and best-effort: callers log errors
// and carry on with what they have in memory.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// Store is a synchronous key-value store.
// Get returns (value, true, nil) when present and (nil, false, nil) when absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// GetJSON decodes the value stored under key into v. Returns false when the key is absent.
func GetJSON(ctx context.Context, s Store, key string, v any) (bool, error) {
	raw, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON encodes v and stores it under key.
func SetJSON(ctx context.Context, s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
