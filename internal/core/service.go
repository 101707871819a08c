package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultIngestTimeout is the maximum duration for one ingest.
const DefaultIngestTimeout = 10 * time.Minute

// DefaultBatchSize is the number of rows buffered before a storage write.
const DefaultBatchSize = 500

// DefaultCleanupDelay is how long a finished ingest stays subscribable
// before it is dropped from in-memory tracking. Its result remains
// available through the Store afterwards.
const DefaultCleanupDelay = 5 * time.Minute

// Options configures a Service.
type Options struct {
	MaxConcurrent    int           // parallel ingest cap, 0 for default
	MaxWait          time.Duration // slot wait before rejection, 0 for default
	BatchSize        int           // rows per storage write, 0 for default
	Timeout          time.Duration // per-ingest deadline, 0 for default
	ProgressInterval int           // rows between progress events, 0 for parser default
	FragmentSize     int           // pump read size, 0 for default
	CleanupDelay     time.Duration // finished-ingest retention, 0 for default
}

// Service coordinates streaming CSV ingests: it enforces the concurrency
// limit, tracks active ingests for progress subscription and cancellation,
// and writes accepted rows to the Store.
type Service struct {
	store   Store
	log     *slog.Logger
	limiter *IngestLimiter
	opts    Options

	mu      sync.RWMutex
	ingests map[uuid.UUID]*activeIngest
}

// NewService creates a Service backed by store.
func NewService(store Store, log *slog.Logger, opts Options) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultIngestTimeout
	}
	if opts.CleanupDelay <= 0 {
		opts.CleanupDelay = DefaultCleanupDelay
	}

	return &Service{
		store:   store,
		log:     log,
		limiter: NewIngestLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:    opts,
		ingests: make(map[uuid.UUID]*activeIngest),
	}
}

// Limiter exposes the concurrency limiter for monitoring.
func (s *Service) Limiter() *IngestLimiter { return s.limiter }

// activeIngest tracks one in-flight (or recently finished) ingest.
type activeIngest struct {
	id     uuid.UUID
	cancel context.CancelFunc
	done   chan struct{}

	mu        sync.Mutex
	progress  IngestProgress
	result    *IngestResult
	listeners []chan IngestProgress
}

// update applies fn to the progress snapshot under lock and broadcasts the
// new state to all listeners. Slow listeners miss updates rather than
// stalling the parse loop.
func (ing *activeIngest) update(fn func(*IngestProgress)) {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	fn(&ing.progress)
	for _, ch := range ing.listeners {
		select {
		case ch <- ing.progress:
		default:
		}
	}
}

// snapshot returns the current progress.
func (ing *activeIngest) snapshot() IngestProgress {
	ing.mu.Lock()
	defer ing.mu.Unlock()
	return ing.progress
}

// closeListeners closes all subscription channels.
func (ing *activeIngest) closeListeners() {
	ing.mu.Lock()
	defer ing.mu.Unlock()

	for _, ch := range ing.listeners {
		close(ch)
	}
	ing.listeners = nil
}

// SubscribeProgress returns a channel receiving progress updates for an
// ingest, starting with its current state. The channel is closed when the
// ingest finishes.
func (s *Service) SubscribeProgress(id uuid.UUID) (<-chan IngestProgress, error) {
	s.mu.RLock()
	ing, ok := s.ingests[id]
	s.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrIngestNotFound, id)
	}

	ch := make(chan IngestProgress, 16)

	ing.mu.Lock()
	ch <- ing.progress
	if ing.result != nil {
		// Already finished; deliver the final state and close immediately.
		ing.mu.Unlock()
		close(ch)
		return ch, nil
	}
	ing.listeners = append(ing.listeners, ch)
	ing.mu.Unlock()

	return ch, nil
}

// Progress returns the current progress of an ingest without blocking.
func (s *Service) Progress(id uuid.UUID) (IngestProgress, error) {
	s.mu.RLock()
	ing, ok := s.ingests[id]
	s.mu.RUnlock()

	if !ok {
		return IngestProgress{}, fmt.Errorf("%w: %s", ErrIngestNotFound, id)
	}
	return ing.snapshot(), nil
}

// Cancel aborts an in-progress ingest.
func (s *Service) Cancel(id uuid.UUID) error {
	s.mu.RLock()
	ing, ok := s.ingests[id]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrIngestNotFound, id)
	}
	ing.cancel()
	return nil
}

// Result returns the final outcome of an ingest, waiting for completion if
// it is still running. Ingests already dropped from in-memory tracking are
// looked up in the store.
func (s *Service) Result(ctx context.Context, id uuid.UUID) (IngestResult, error) {
	s.mu.RLock()
	ing, ok := s.ingests[id]
	s.mu.RUnlock()

	if !ok {
		return s.store.GetIngest(ctx, id)
	}

	select {
	case <-ing.done:
	case <-ctx.Done():
		return IngestResult{}, ctx.Err()
	}

	ing.mu.Lock()
	defer ing.mu.Unlock()
	return *ing.result, nil
}

// ListIngests returns recorded outcomes, most recent first.
func (s *Service) ListIngests(ctx context.Context, limit int) ([]IngestResult, error) {
	return s.store.ListIngests(ctx, limit)
}

// FailedRows returns the validation-rejected rows of an ingest.
func (s *Service) FailedRows(ctx context.Context, id uuid.UUID) ([]FailedRow, error) {
	return s.store.FailedRows(ctx, id)
}

// Drain blocks until all active ingests finish or ctx is cancelled. Used
// during graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// cleanup drops a finished ingest from tracking after a delay, leaving time
// for clients to fetch the result from memory.
func (s *Service) cleanup(id uuid.UUID, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.ingests, id)
		s.mu.Unlock()
	})
}
