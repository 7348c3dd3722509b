// Package analysis orchestrates the skill-extraction pipeline: fetch postings,
// dispatch extraction batches, merge per-posting results into a ranked
// frequency table, and cache the outcome.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/francetravail"
	"github.com/skillscope/skillscope/internal/skills"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBatchSize   = 25
	DefaultTopSkills   = 30
	DefaultMaxParallel = 5
	DefaultCacheTTL    = 30 * 24 * time.Hour

	// Shown as the top diploma when no posting states one.
	educationUnknown = "Non précisé"
)

// ErrNoResults is the terminal "nothing to show" outcome: no postings, no
// usable descriptions, or no extractable skills. Callers surface it as an
// empty result, never as a failure.
var ErrNoResults = errors.New("no postings or extractable skills found")

// JobSource provides postings for a free-text query.
type JobSource interface {
	Search(ctx context.Context, query string, maxCount int) ([]francetravail.Posting, error)
}

// Cache stores computed results. Implementations must return (nil, nil) on a
// miss; a read error is treated like a miss by the aggregator.
type Cache interface {
	Get(ctx context.Context, key string) (*Result, error)
	Set(ctx context.Context, key string, result *Result, ttl time.Duration) error
}

// Config tunes one aggregator instance. Zero values fall back to the package
// defaults.
type Config struct {
	BatchSize   int
	TopSkills   int
	MaxParallel int
	CacheTTL    time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.TopSkills <= 0 {
		c.TopSkills = DefaultTopSkills
	}
	if c.MaxParallel <= 0 {
		c.MaxParallel = DefaultMaxParallel
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	return c
}

// Aggregator runs the pipeline. Concurrent runs for the same cache key are
// coalesced: late callers wait for the first run instead of re-dispatching.
type Aggregator struct {
	source    JobSource
	extractor ai.Extractor
	cache     Cache
	logger    *zap.Logger
	cfg       Config

	group    singleflight.Group
	progress func(ProgressEvent)
}

func New(source JobSource, extractor ai.Extractor, cache Cache, logger *zap.Logger, cfg Config) *Aggregator {
	return &Aggregator{
		source:    source,
		extractor: extractor,
		cache:     cache,
		logger:    logger,
		cfg:       cfg.withDefaults(),
	}
}

// SetProgress registers a sink for batch-completion events. Must be called
// before the first Run.
func (a *Aggregator) SetProgress(fn func(ProgressEvent)) {
	a.progress = fn
}

// Key derives the cache key for a query/count pair: lower-cased, trimmed,
// accent-stripped, inner whitespace collapsed. "Data  Engineer"/100 and
// "data engineer "/100 resolve to the same key; a different count changes it.
func Key(query string, count int) string {
	normalized := skills.StripAccents(strings.ToLower(strings.Join(strings.Fields(query), " ")))
	return fmt.Sprintf("%s@%d", normalized, count)
}

// Run executes the pipeline for one query and returns the ranked result, a
// cached copy, or ErrNoResults. Unexpected panics are contained here; the
// process must survive any single analysis.
func (a *Aggregator) Run(ctx context.Context, query string, maxCount int, forceRefresh bool) (*Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrNoResults
	}

	key := Key(query, maxCount)

	v, err, shared := a.group.Do(key, func() (res any, err error) {
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("analysis panicked",
					zap.String("key", key),
					zap.Any("panic", r),
					zap.Stack("stack"),
				)
				res, err = nil, fmt.Errorf("analysis failed for %q", key)
			}
		}()
		return a.run(ctx, key, query, maxCount, forceRefresh)
	})
	if shared {
		a.logger.Debug("joined in-flight analysis", zap.String("key", key))
	}
	if err != nil {
		return nil, err
	}

	return v.(*Result), nil
}

func (a *Aggregator) run(ctx context.Context, key, query string, maxCount int, forceRefresh bool) (*Result, error) {
	a.logger.Info("starting analysis",
		zap.String("key", key),
		zap.Int("max_count", maxCount),
		zap.Bool("force_refresh", forceRefresh),
	)

	if !forceRefresh {
		cached, err := a.cache.Get(ctx, key)
		if err != nil {
			a.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		}
		if cached != nil {
			a.logger.Info("cache hit", zap.String("key", key))
			return cached, nil
		}
		a.logger.Info("cache miss", zap.String("key", key))
	}

	postings, err := a.source.Search(ctx, query, maxCount)
	if err != nil {
		// Upstream unavailability surfaces as "no results", details
		// stay in the logs.
		a.logger.Error("job search failed", zap.String("key", key), zap.Error(err))
		return nil, ErrNoResults
	}
	if len(postings) == 0 {
		a.logger.Warn("no postings found", zap.String("key", key))
		return nil, ErrNoResults
	}

	descriptions := make([]string, 0, len(postings))
	for _, p := range postings {
		if strings.TrimSpace(p.Description) != "" {
			descriptions = append(descriptions, p.Description)
		}
	}
	if len(descriptions) == 0 {
		a.logger.Warn("no usable descriptions", zap.String("key", key), zap.Int("postings", len(postings)))
		return nil, ErrNoResults
	}

	batches := chunk(descriptions, a.cfg.BatchSize)
	a.logger.Info("dispatching extraction batches",
		zap.String("key", key),
		zap.Int("descriptions", len(descriptions)),
		zap.Int("batches", len(batches)),
	)

	results := a.extract(ctx, key, query, batches)

	skillTable, educationTable := merge(results)
	if skillTable.empty() {
		a.logger.Error("merge produced no skills", zap.String("key", key))
		return nil, ErrNoResults
	}

	ranked := skillTable.ranked()
	if len(ranked) > a.cfg.TopSkills {
		ranked = ranked[:a.cfg.TopSkills]
	}

	topDiploma := educationTable.mode()
	if topDiploma == "" {
		topDiploma = educationUnknown
	}

	result := &Result{
		Skills:     ranked,
		TopDiploma: topDiploma,
		// Postings fetched, not postings analyzed: mirrors what the
		// user asked for and keeps the count stable when single
		// batches fail.
		ActualOffersCount: len(postings),
	}

	a.logger.Info("analysis finished",
		zap.String("key", key),
		zap.Int("skills", len(result.Skills)),
		zap.String("top_diploma", result.TopDiploma),
		zap.Int("offers", result.ActualOffersCount),
	)

	if err := a.cache.Set(ctx, key, result, a.cfg.CacheTTL); err != nil {
		a.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}

	return result, nil
}

// extract dispatches one extractor call per batch with a bounded degree of
// parallelism. A failed batch contributes nothing; there is no retry beyond
// what the generator does internally.
func (a *Aggregator) extract(ctx context.Context, key, query string, batches [][]string) [][]ai.Entry {
	sizes := make([]int, len(batches))
	for i, b := range batches {
		sizes[i] = len(b)
	}
	tracker := newProgressTracker(key, sizes, a.progress)

	results := make([][]ai.Entry, len(batches))

	g := new(errgroup.Group)
	g.SetLimit(a.cfg.MaxParallel)
	for i, batch := range batches {
		g.Go(func() error {
			entries, err := a.extractor.Extract(ctx, query, batch)
			if err != nil {
				a.logger.Warn("dropping failed batch",
					zap.String("key", key),
					zap.Int("batch", i),
					zap.Error(err),
				)
			} else {
				results[i] = entries
			}
			tracker.complete(i)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func chunk(items []string, size int) [][]string {
	chunks := make([][]string, 0, (len(items)+size-1)/size)
	for size < len(items) {
		chunks = append(chunks, items[:size])
		items = items[size:]
	}
	return append(chunks, items)
}
