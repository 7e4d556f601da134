package sink

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-gaze/internal/log"
	"github.com/teslashibe/go-gaze/pkg/gaze"
	"github.com/teslashibe/go-gaze/pkg/pipeline"
	"github.com/teslashibe/go-gaze/pkg/store"
)

const (
	// storeQueueSize bounds the enqueue seen by the coordinator.
	storeQueueSize = 256

	// storeBatchSize and storeFlushInterval trade insert latency for
	// fewer transactions at 30 fps.
	storeBatchSize     = 64
	storeFlushInterval = 500 * time.Millisecond
)

type storeOp struct {
	result *pipeline.Result
	event  *gaze.StateEvent
	marker *pipeline.Marker
}

// Store persists pipeline output through a background writer so
// database latency never reaches the coordinator. Overflow is dropped
// and counted.
type Store struct {
	st *store.Store

	mu        sync.RWMutex
	sessionID string

	queue   chan storeOp
	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewStore creates a store sink. Call Run before the session starts and
// SetSession once the session ID is known.
func NewStore(st *store.Store) *Store {
	return &Store{
		st:    st,
		queue: make(chan storeOp, storeQueueSize),
	}
}

// SetSession binds subsequent events and markers to a session. Results
// carry their own session ID.
func (s *Store) SetSession(id string) {
	s.mu.Lock()
	s.sessionID = id
	s.mu.Unlock()
}

func (s *Store) session() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Dropped returns how many writes were discarded because the queue was
// full.
func (s *Store) Dropped() uint64 {
	return s.dropped.Load()
}

// Run starts the background writer. It drains and flushes everything
// queued before ctx cancellation, then returns.
func (s *Store) Run(ctx context.Context) {
	s.wg.Add(1)
	go s.writeLoop(ctx)
}

// Wait blocks until the writer has flushed and exited.
func (s *Store) Wait() {
	s.wg.Wait()
}

func (s *Store) WriteResult(r pipeline.Result) {
	s.enqueue(storeOp{result: &r})
}

func (s *Store) WriteEvent(ev gaze.StateEvent) {
	s.enqueue(storeOp{event: &ev})
}

func (s *Store) WriteMarker(m pipeline.Marker) {
	s.enqueue(storeOp{marker: &m})
}

func (s *Store) enqueue(op storeOp) {
	select {
	case s.queue <- op:
	default:
		s.dropped.Add(1)
	}
}

func (s *Store) writeLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(storeFlushInterval)
	defer ticker.Stop()

	var batch []pipeline.Result
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.st.AppendResults(batch); err != nil {
			log.Error("persist results", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			// Drain whatever is still queued, then flush.
			for {
				select {
				case op := <-s.queue:
					batch = s.apply(op, batch)
				default:
					flush()
					return
				}
			}

		case op := <-s.queue:
			batch = s.apply(op, batch)
			if len(batch) >= storeBatchSize {
				flush()
			}

		case <-ticker.C:
			flush()
		}
	}
}

// apply routes one op: results batch up, events and markers write
// through immediately since they are rare.
func (s *Store) apply(op storeOp, batch []pipeline.Result) []pipeline.Result {
	switch {
	case op.result != nil:
		return append(batch, *op.result)
	case op.event != nil:
		if id := s.session(); id != "" {
			if err := s.st.AppendEvent(id, *op.event); err != nil {
				log.Error("persist event", "error", err)
			}
		}
	case op.marker != nil:
		if id := s.session(); id != "" {
			if err := s.st.AppendMarker(id, *op.marker); err != nil {
				log.Error("persist marker", "error", err)
			}
		}
	}
	return batch
}
