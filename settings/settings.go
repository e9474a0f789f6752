// Package settings is the key-value persistor backing the NTP feature
// models. Every model mutation writes through synchronously before the
// change is announced, so a crash never loses acknowledged state and a
// fresh NTP load always sees the last write.
//
// Keys are feature-scoped strings ("widgets.config", "protections.config");
// values are JSON-encoded by the store.
package settings

import (
	"context"
	"fmt"
)

// Store persists feature settings as JSON values under string keys.
type Store interface {
	// Get decodes the value stored under key into v.
	// Returns ErrNotFound if the key has never been set.
	Get(ctx context.Context, key string, v any) error

	// Set encodes v and stores it under key, replacing any prior value.
	Set(ctx context.Context, key string, v any) error
}

// ErrNotFound is returned by Get for a key that has never been set.
// Callers treat it as "use the default" rather than a failure.
type ErrNotFound struct {
	Key string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("settings: key not found: %s", e.Key)
}
