package analysis

import "sync"

// ProgressEvent reports that a batch finished. Events for one run are emitted
// strictly in batch-submission order so a consumer can drive a progress bar
// even when batches are dispatched in parallel.
type ProgressEvent struct {
	// Key is the cache key of the run the event belongs to.
	Key string
	// Batch is the 1-based index of the last batch in the finished prefix.
	Batch int
	// Batches is the total batch count of the run.
	Batches int
	// Postings is the cumulative number of descriptions covered so far.
	Postings int
}

// progressTracker turns unordered batch completions into ordered events: a
// batch is reported only once every batch before it has completed.
type progressTracker struct {
	mu       sync.Mutex
	key      string
	sizes    []int
	done     []bool
	next     int
	postings int
	emit     func(ProgressEvent)
}

func newProgressTracker(key string, sizes []int, emit func(ProgressEvent)) *progressTracker {
	return &progressTracker{
		key:   key,
		sizes: sizes,
		done:  make([]bool, len(sizes)),
		emit:  emit,
	}
}

func (p *progressTracker) complete(i int) {
	if p.emit == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.done[i] = true
	for p.next < len(p.sizes) && p.done[p.next] {
		p.postings += p.sizes[p.next]
		p.next++
		p.emit(ProgressEvent{
			Key:      p.key,
			Batch:    p.next,
			Batches:  len(p.sizes),
			Postings: p.postings,
		})
	}
}
