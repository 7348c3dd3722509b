// Package cache persists analysis results between runs. The Redis backend is
// the production store; the in-memory one backs tests and local development
// without a Redis instance.
package cache

import (
	"context"
	"time"

	"github.com/skillscope/skillscope/internal/analysis"
)

// DefaultTTL is how long a computed result stays valid.
const DefaultTTL = 30 * 24 * time.Hour

// Store is the persistence contract used by the aggregator and the admin
// surfaces. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, key string) (*analysis.Result, error)
	Set(ctx context.Context, key string, result *analysis.Result, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	FlushAll(ctx context.Context) error
}
