// Package kvstore is the key-value persistence injected into the session and
// notification services. Values are opaque bytes; callers load once at
// construction and save on every mutation.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/civictrack/civictrack-backend/pkg/config"
)

var (
	// ErrNotFound is returned by Get when the key has no value
	ErrNotFound = errors.New("kvstore: key not found")
	// ErrCorrupt is returned by GetJSON when the stored value does not decode.
	// Any other GetJSON error comes from the backend and may be transient.
	ErrCorrupt = errors.New("kvstore: corrupt value")
)

// Store is a minimal key-value store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the store selected by cfg.Driver
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreDriverMemory, "":
		return NewMemory(), nil
	case config.StoreDriverSQLite:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case config.StoreDriverRedis:
		return OpenRedis(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// GetJSON loads key into v. It returns ErrNotFound untouched so callers can
// treat a missing key as an empty state.
func GetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode %s: %w", ErrCorrupt, key, err)
	}
	return nil
}

// SetJSON stores v under key
func SetJSON(ctx context.Context, s Store, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}
