package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/skillscope/skillscope/internal/analysis"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// Redis stores results as JSON values under their analysis key. When the
// server is unreachable at startup the store degrades to a no-op: every Get
// is a miss and every write is silently dropped, so the application keeps
// working without persistence.
type Redis struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedis connects to the given redis URL. A bad URL or a failed ping does
// not return an error; it returns a degraded store and logs the reason.
func NewRedis(url string, logger *zap.Logger) *Redis {
	opts, err := redis.ParseURL(url)
	if err != nil {
		logger.Warn("invalid redis url, caching disabled", zap.Error(err))
		return &Redis{logger: logger}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, caching disabled",
			zap.String("addr", opts.Addr),
			zap.Error(err),
		)
		return &Redis{logger: logger}
	}

	logger.Info("redis connected", zap.String("addr", opts.Addr))
	return &Redis{client: client, logger: logger}
}

// Enabled reports whether a live connection backs the store.
func (r *Redis) Enabled() bool {
	return r.client != nil
}

func (r *Redis) Get(ctx context.Context, key string) (*analysis.Result, error) {
	if r.client == nil {
		return nil, nil
	}

	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var result analysis.Result
	if err := json.Unmarshal(b, &result); err != nil {
		// A corrupt value is a miss; it will be overwritten by the
		// next successful run.
		r.logger.Warn("discarding corrupt cache entry", zap.String("key", key), zap.Error(err))
		return nil, nil
	}
	return &result, nil
}

func (r *Redis) Set(ctx context.Context, key string, result *analysis.Result, ttl time.Duration) error {
	if r.client == nil {
		return nil
	}

	b, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, b, ttl).Err()
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if r.client == nil {
		return nil
	}
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) FlushAll(ctx context.Context) error {
	if r.client == nil {
		return nil
	}
	return r.client.FlushAll(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}
