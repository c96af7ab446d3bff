// Package progress fans scan pipeline events out to stream consumers. Each
// job gets one emitter; delivery is fire-and-forget with bounded buffering so
// a slow or absent consumer can never stall the pipeline.
package progress

import (
	"sync"
	"time"

	"github.com/afcbpeter1/Accessitest-sub009/internal/domain"
)

const (
	// subscriberBuffer is the per-consumer channel depth. When a consumer
	// falls behind, the oldest buffered event is dropped to make room.
	subscriberBuffer = 64
	// historyLimit bounds the replay buffer handed to late subscribers.
	historyLimit = 256
)

// Hub tracks one event stream per scan job.
type Hub struct {
	mu   sync.RWMutex
	jobs map[string]*stream
}

type stream struct {
	mu       sync.Mutex
	subs     map[chan domain.ProgressEvent]struct{}
	history  []domain.ProgressEvent
	done     bool
	closedAt time.Time
}

// Emitter is the pipeline-side handle for one job's stream.
type Emitter struct {
	s *stream
}

func NewHub() *Hub {
	return &Hub{jobs: make(map[string]*stream)}
}

// Register opens (or returns) the stream for a job and hands back its emitter.
func (h *Hub) Register(jobID string) *Emitter {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.jobs[jobID]
	if !ok {
		s = &stream{subs: make(map[chan domain.ProgressEvent]struct{})}
		h.jobs[jobID] = s
	}
	return &Emitter{s: s}
}

// Subscribe attaches a consumer to a job's stream. Past events are replayed
// first; for finished jobs the returned channel is pre-filled and closed. The
// cancel func detaches the consumer and is safe to call more than once.
func (h *Hub) Subscribe(jobID string) (<-chan domain.ProgressEvent, func(), bool) {
	h.mu.RLock()
	s, ok := h.jobs[jobID]
	h.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	depth := subscriberBuffer
	if n := len(s.history); n > depth {
		depth = n
	}
	ch := make(chan domain.ProgressEvent, depth)
	for _, ev := range s.history {
		ch <- ev
	}
	if s.done {
		close(ch)
		return ch, func() {}, true
	}

	s.subs[ch] = struct{}{}
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, live := s.subs[ch]; live {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel, true
}

// Reap drops streams whose terminal event is older than the given age.
// Returns how many were removed.
func (h *Hub) Reap(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	h.mu.Lock()
	defer h.mu.Unlock()
	removed := 0
	for id, s := range h.jobs {
		s.mu.Lock()
		dead := s.done && s.closedAt.Before(cutoff)
		s.mu.Unlock()
		if dead {
			delete(h.jobs, id)
			removed++
		}
	}
	return removed
}

// Emit pushes a non-terminal event. Events arriving after the terminal one
// are discarded, preserving the closed-exactly-once contract.
func (e *Emitter) Emit(ev domain.ProgressEvent) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.record(ev)
	for ch := range s.subs {
		sendOrDropOldest(ch, ev)
	}
}

// Terminal pushes the final event and closes every consumer channel. Only
// the first call has any effect.
func (e *Emitter) Terminal(ev domain.ProgressEvent) {
	s := e.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return
	}
	s.record(ev)
	for ch := range s.subs {
		sendOrDropOldest(ch, ev)
		close(ch)
		delete(s.subs, ch)
	}
	s.done = true
	s.closedAt = time.Now()
}

func (s *stream) record(ev domain.ProgressEvent) {
	s.history = append(s.history, ev)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
}

// sendOrDropOldest delivers without ever blocking: when the consumer buffer
// is full the oldest pending event is sacrificed for the new one.
func sendOrDropOldest(ch chan domain.ProgressEvent, ev domain.ProgressEvent) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}
