// Package settings is the key-value option store the agent keeps its
// credential and cached update metadata in.
package settings

import (
	"context"
	"time"
)

// Store is safe for concurrent use. Get reports ok=false for missing or
// expired keys.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
