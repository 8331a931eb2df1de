package querycache

import (
	"container/heap"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RemovalTarget is what the scheduler evicts from.
type RemovalTarget interface {
	Remove(key Key)
}

type removal struct {
	deadline time.Time
	key      Key
}

type removalHeap []removal

func (h removalHeap) Len() int           { return len(h) }
func (h removalHeap) Less(i, j int) bool { return h[i].deadline.Before(h[j].deadline) }
func (h removalHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *removalHeap) Push(x any)        { *h = append(*h, x.(removal)) }
func (h *removalHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	*h = old[:n-1]
	return r
}

// Scheduler orders pending removals by deadline and drains them on a single
// background worker. Duplicates for one key are permitted; each pops
// independently against an idempotent Remove.
//
// The condition variable is signaled on three events: a new earliest
// deadline, a stop request, and the current deadline elapsing (a self-timed
// wakeup). The wait predicate re-checks the heap head and the running flag
// after every wake, so spurious wakeups are harmless.
type Scheduler struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending removalHeap
	running bool
	logger  *zap.Logger
}

// NewScheduler creates a scheduler. Run must be started separately.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{running: true, logger: logger}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Schedule inserts a removal due after d. If the new deadline becomes the
// minimum, the worker is signaled to re-evaluate its wait.
func (s *Scheduler) Schedule(d time.Duration, key Key) {
	deadline := time.Now().Add(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	newMin := len(s.pending) == 0 || deadline.Before(s.pending[0].deadline)
	heap.Push(&s.pending, removal{deadline: deadline, key: key})
	if newMin {
		s.cond.Signal()
	}
	s.logger.Debug("scheduled cache removal",
		zap.Duration("after", d),
		zap.Int("pending", len(s.pending)))
}

// Run consumes due deadlines, removing each key from target. It returns only
// after Stop. The remove itself runs with the scheduler mutex released so the
// scheduler never holds its lock while taking the store's.
func (s *Scheduler) Run(target RemovalTarget) {
	s.mu.Lock()
	for s.running {
		if len(s.pending) == 0 {
			s.cond.Wait()
			continue
		}
		head := s.pending[0]
		if wait := time.Until(head.deadline); wait > 0 {
			// sync.Cond has no timed wait; arm a one-shot timer that
			// broadcasts when the current deadline elapses, then re-check
			// the predicate like any other wakeup.
			t := time.AfterFunc(wait, func() {
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			})
			s.cond.Wait()
			t.Stop()
			continue
		}
		r := heap.Pop(&s.pending).(removal)
		s.mu.Unlock()
		target.Remove(r.key)
		s.mu.Lock()
	}
	s.mu.Unlock()
}

// Stop unblocks the worker and discards in-flight deadlines. The owner is
// expected to join the goroutine running Run. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.cond.Broadcast()
}

// Pending returns the number of queued removals.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
