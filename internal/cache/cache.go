// Package cache declares the byte-level cache used by the geocoder and the order service.
// Callers treat every cache error as a miss.
package cache

import (
	"context"
	"time"
)

type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set with ttl 0 keeps the value until evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
