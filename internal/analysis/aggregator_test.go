package analysis

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/francetravail"

	"go.uber.org/zap"
)

type fakeSource struct {
	postings []francetravail.Posting
	err      error
	calls    atomic.Int64
	delay    time.Duration
}

func (f *fakeSource) Search(_ context.Context, _ string, _ int) ([]francetravail.Posting, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.postings, f.err
}

type fakeExtractor struct {
	fn    func(jobTitle string, descriptions []string) ([]ai.Entry, error)
	calls atomic.Int64
}

func (f *fakeExtractor) Extract(_ context.Context, jobTitle string, descriptions []string) ([]ai.Entry, error) {
	f.calls.Add(1)
	return f.fn(jobTitle, descriptions)
}

// echoExtractor tags every description with one skill equal to its content.
func echoExtractor() *fakeExtractor {
	return &fakeExtractor{fn: func(_ string, descriptions []string) ([]ai.Entry, error) {
		entries := make([]ai.Entry, len(descriptions))
		for i, d := range descriptions {
			entries[i] = ai.Entry{Index: i, Skills: []string{d}, EducationLevel: ai.EducationUnspecified}
		}
		return entries, nil
	}}
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*Result
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*Result)}
}

func (m *memoryCache) Get(_ context.Context, key string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.entries[key], nil
}

func (m *memoryCache) Set(_ context.Context, key string, result *Result, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = result
	return nil
}

func postings(descriptions ...string) []francetravail.Posting {
	out := make([]francetravail.Posting, len(descriptions))
	for i, d := range descriptions {
		out[i] = francetravail.Posting{Title: fmt.Sprintf("offre %d", i), Description: d}
	}
	return out
}

func newTestAggregator(source *fakeSource, extractor *fakeExtractor, cache Cache, cfg Config) *Aggregator {
	return New(source, extractor, cache, zap.NewNop(), cfg)
}

func TestKey(t *testing.T) {
	cases := []struct {
		query string
		count int
		want  string
	}{
		{"Data Engineer", 100, "data engineer@100"},
		{"  data   engineer  ", 100, "data engineer@100"},
		{"Développeur Web", 50, "developpeur web@50"},
		{"Data Engineer", 150, "data engineer@150"},
	}
	for _, tc := range cases {
		if got := Key(tc.query, tc.count); got != tc.want {
			t.Errorf("Key(%q, %d) = %q, want %q", tc.query, tc.count, got, tc.want)
		}
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	batches := [][]ai.Entry{
		{{Skills: []string{"SQL", "Python"}}, {Skills: []string{"SQL"}}},
		{{Skills: []string{"Python"}}},
		{{Skills: []string{"Docker"}}},
	}
	reversed := [][]ai.Entry{batches[2], batches[1], batches[0]}

	counts := func(b [][]ai.Entry) map[string]int {
		table, _ := merge(b)
		out := make(map[string]int)
		for _, sc := range table.ranked() {
			out[sc.Skill] = sc.Frequency
		}
		return out
	}

	got, want := counts(reversed), counts(batches)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reversed batch order changed counts: %v vs %v", got, want)
	}
	if want["SQL"] != 2 || want["Python"] != 2 || want["Docker"] != 1 {
		t.Errorf("unexpected counts: %v", want)
	}
}

func TestMergeDeduplicatesWithinPosting(t *testing.T) {
	table, _ := merge([][]ai.Entry{{
		{Skills: []string{"SQL", "sql", "SQL"}},
	}})
	ranked := table.ranked()
	if len(ranked) != 1 || ranked[0].Frequency != 1 {
		t.Fatalf("unexpected ranking: %v", ranked)
	}
	if ranked[0].Skill != "SQL" {
		t.Errorf("skill = %q, want normalized SQL", ranked[0].Skill)
	}
}

func TestMergeNormalizesVariants(t *testing.T) {
	table, _ := merge([][]ai.Entry{{
		{Skills: []string{"PowerBI"}},
		{Skills: []string{"Power BI"}},
		{Skills: []string{"power bi"}},
	}})
	ranked := table.ranked()
	if len(ranked) != 1 {
		t.Fatalf("variants not merged: %v", ranked)
	}
	if ranked[0].Skill != "Power BI" || ranked[0].Frequency != 3 {
		t.Errorf("got %v, want {Power BI 3}", ranked[0])
	}
}

func TestRunCachesAndReusesResult(t *testing.T) {
	source := &fakeSource{postings: postings("Python", "SQL")}
	extractor := echoExtractor()
	cache := newMemoryCache()
	agg := newTestAggregator(source, extractor, cache, Config{})

	first, err := agg.Run(context.Background(), "data engineer", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := agg.Run(context.Background(), "Data  Engineer", 100, false)
	if err != nil {
		t.Fatalf("Run (cached): %v", err)
	}

	if source.calls.Load() != 1 || extractor.calls.Load() != 1 {
		t.Errorf("cached run hit upstream: source=%d extractor=%d", source.calls.Load(), extractor.calls.Load())
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached result differs: %v vs %v", second, first)
	}
}

func TestRunForceRefreshSkipsCache(t *testing.T) {
	source := &fakeSource{postings: postings("Python")}
	extractor := echoExtractor()
	cache := newMemoryCache()
	agg := newTestAggregator(source, extractor, cache, Config{})

	if _, err := agg.Run(context.Background(), "dev", 50, false); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if _, err := agg.Run(context.Background(), "dev", 50, true); err != nil {
		t.Fatalf("Run (refresh): %v", err)
	}
	if source.calls.Load() != 2 {
		t.Errorf("source calls = %d, want 2", source.calls.Load())
	}
}

func TestRunCacheReadFailureFallsThrough(t *testing.T) {
	source := &fakeSource{postings: postings("Python")}
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	agg := newTestAggregator(source, echoExtractor(), cache, Config{})

	res, err := agg.Run(context.Background(), "dev", 50, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Skills) != 1 {
		t.Errorf("unexpected result: %v", res)
	}
}

func TestRunNoPostings(t *testing.T) {
	source := &fakeSource{}
	extractor := echoExtractor()
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{})

	if _, err := agg.Run(context.Background(), "introuvable", 100, false); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
	if extractor.calls.Load() != 0 {
		t.Errorf("extractor called for empty search")
	}
}

func TestRunEmptyQuery(t *testing.T) {
	source := &fakeSource{postings: postings("Python")}
	agg := newTestAggregator(source, echoExtractor(), newMemoryCache(), Config{})

	if _, err := agg.Run(context.Background(), "   ", 100, false); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
	if source.calls.Load() != 0 {
		t.Errorf("source called for blank query")
	}
}

func TestRunBlankDescriptionsOnly(t *testing.T) {
	source := &fakeSource{postings: postings("", "   ")}
	extractor := echoExtractor()
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{})

	if _, err := agg.Run(context.Background(), "dev", 100, false); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
	if extractor.calls.Load() != 0 {
		t.Errorf("extractor called with nothing to extract")
	}
}

func TestRunSearchErrorBecomesNoResults(t *testing.T) {
	source := &fakeSource{err: errors.New("api down")}
	agg := newTestAggregator(source, echoExtractor(), newMemoryCache(), Config{})

	if _, err := agg.Run(context.Background(), "dev", 100, false); !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestRunTruncatesToTopSkills(t *testing.T) {
	// A appears 5 times, B and C 9 times each, D once. With TopSkills 3
	// the ranking is B, C (first seen wins ties), A.
	var descs []string
	for i := 0; i < 9; i++ {
		descs = append(descs, "B|C")
	}
	for i := 0; i < 5; i++ {
		descs = append(descs, "A")
	}
	descs = append(descs, "D")

	source := &fakeSource{postings: postings(descs...)}
	extractor := &fakeExtractor{fn: func(_ string, descriptions []string) ([]ai.Entry, error) {
		entries := make([]ai.Entry, len(descriptions))
		for i, d := range descriptions {
			var skills []string
			switch d {
			case "B|C":
				skills = []string{"B", "C"}
			default:
				skills = []string{d}
			}
			entries[i] = ai.Entry{Index: i, Skills: skills}
		}
		return entries, nil
	}}
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{TopSkills: 3, BatchSize: 100})

	res, err := agg.Run(context.Background(), "dev", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []SkillCount{{"B", 9}, {"C", 9}, {"A", 5}}
	if !reflect.DeepEqual(res.Skills, want) {
		t.Errorf("skills = %v, want %v", res.Skills, want)
	}
}

func TestRunToleratesFailedBatch(t *testing.T) {
	source := &fakeSource{postings: postings("Python", "SQL", "Docker")}
	var batch atomic.Int64
	extractor := &fakeExtractor{fn: func(_ string, descriptions []string) ([]ai.Entry, error) {
		if batch.Add(1) == 2 {
			return nil, errors.New("model unavailable")
		}
		entries := make([]ai.Entry, len(descriptions))
		for i, d := range descriptions {
			entries[i] = ai.Entry{Index: i, Skills: []string{d}}
		}
		return entries, nil
	}}
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{BatchSize: 1, MaxParallel: 1})

	res, err := agg.Run(context.Background(), "dev", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(res.Skills) != 2 {
		t.Errorf("skills = %v, want the two surviving batches", res.Skills)
	}
	if res.ActualOffersCount != 3 {
		t.Errorf("offers = %d, want 3", res.ActualOffersCount)
	}
}

func TestRunEducationMode(t *testing.T) {
	source := &fakeSource{postings: postings("a", "b", "c", "d")}
	extractor := &fakeExtractor{fn: func(_ string, descriptions []string) ([]ai.Entry, error) {
		levels := []string{"Bac+5 / Master", "Bac+2 / BTS", "Bac+5 / Master", ai.EducationUnspecified}
		entries := make([]ai.Entry, len(descriptions))
		for i := range descriptions {
			entries[i] = ai.Entry{Index: i, Skills: []string{"Go"}, EducationLevel: levels[i]}
		}
		return entries, nil
	}}
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{BatchSize: 100})

	res, err := agg.Run(context.Background(), "dev", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TopDiploma != "Bac+5 / Master" {
		t.Errorf("top diploma = %q, want Bac+5 / Master", res.TopDiploma)
	}
}

func TestRunEducationFallback(t *testing.T) {
	source := &fakeSource{postings: postings("a")}
	agg := newTestAggregator(source, echoExtractor(), newMemoryCache(), Config{})

	res, err := agg.Run(context.Background(), "dev", 100, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.TopDiploma != "Non précisé" {
		t.Errorf("top diploma = %q, want Non précisé", res.TopDiploma)
	}
}

func TestRunEndToEnd(t *testing.T) {
	source := &fakeSource{postings: postings(
		"... SQL and Python and AWS ...",
		"... Python and SQL, Bac+5 required ...",
	)}
	extractor := &fakeExtractor{fn: func(jobTitle string, descriptions []string) ([]ai.Entry, error) {
		if jobTitle != "Data Engineer" {
			t.Errorf("job title = %q", jobTitle)
		}
		if len(descriptions) != 2 {
			t.Errorf("batch size = %d", len(descriptions))
		}
		return []ai.Entry{
			{Index: 0, Skills: []string{"SQL", "Python", "AWS"}, EducationLevel: "Bac+5 / Master"},
			{Index: 1, Skills: []string{"Python", "SQL"}, EducationLevel: "Bac+5 / Master"},
		}, nil
	}}
	agg := newTestAggregator(source, extractor, newMemoryCache(), Config{})

	res, err := agg.Run(context.Background(), "Data Engineer", 2, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []SkillCount{{"SQL", 2}, {"Python", 2}, {"AWS", 1}}
	if !reflect.DeepEqual(res.Skills, want) {
		t.Errorf("skills = %v, want %v", res.Skills, want)
	}
	if res.TopDiploma != "Bac+5 / Master" {
		t.Errorf("top diploma = %q", res.TopDiploma)
	}
	if res.ActualOffersCount != 2 {
		t.Errorf("offers = %d, want 2", res.ActualOffersCount)
	}
}

func TestRunCoalescesConcurrentCallers(t *testing.T) {
	source := &fakeSource{postings: postings("Python"), delay: 50 * time.Millisecond}
	agg := newTestAggregator(source, echoExtractor(), newMemoryCache(), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := agg.Run(context.Background(), "dev", 100, false); err != nil {
				t.Errorf("Run: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls := source.calls.Load(); calls != 1 {
		t.Errorf("source calls = %d, want 1 coalesced run", calls)
	}
}

func TestProgressEventsOrdered(t *testing.T) {
	tracker := newProgressTracker("dev@100", []int{25, 25, 10}, nil)
	tracker.complete(0) // no sink registered, must not panic

	var events []ProgressEvent
	tracker = newProgressTracker("dev@100", []int{25, 25, 10}, func(e ProgressEvent) {
		events = append(events, e)
	})

	// Batches finish out of order; events still come out in order.
	tracker.complete(2)
	if len(events) != 0 {
		t.Fatalf("event emitted before prefix complete: %v", events)
	}
	tracker.complete(0)
	tracker.complete(1)

	want := []ProgressEvent{
		{Key: "dev@100", Batch: 1, Batches: 3, Postings: 25},
		{Key: "dev@100", Batch: 2, Batches: 3, Postings: 50},
		{Key: "dev@100", Batch: 3, Batches: 3, Postings: 60},
	}
	if !reflect.DeepEqual(events, want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}

func TestChunk(t *testing.T) {
	got := chunk([]string{"a", "b", "c", "d", "e"}, 2)
	want := [][]string{{"a", "b"}, {"c", "d"}, {"e"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("chunk = %v, want %v", got, want)
	}

	got = chunk([]string{"a"}, 25)
	if len(got) != 1 || len(got[0]) != 1 {
		t.Errorf("single chunk = %v", got)
	}
}
