package speech

import "sync"

// sequencer hands out playback turns in ticket order. Tickets may finish
// out of order; the turn advances past every finished ticket. reset makes
// every outstanding ticket stale so that a flush never waits on superseded
// work.
type sequencer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	issued uint64
	next   uint64
	done   map[uint64]bool
	closed bool
}

func newSequencer() *sequencer {
	s := &sequencer{done: make(map[uint64]bool)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

func (s *sequencer) issue() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.issued
	s.issued++
	return t
}

// wait blocks until it is ticket t's turn. It returns false when t became
// stale or the sequencer was closed.
func (s *sequencer) wait(t uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && t > s.next {
		s.cond.Wait()
	}
	return !s.closed && t == s.next
}

func (s *sequencer) finish(t uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t < s.next {
		return
	}
	s.done[t] = true
	for s.done[s.next] {
		delete(s.done, s.next)
		s.next++
	}
	s.cond.Broadcast()
}

func (s *sequencer) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next = s.issued
	clear(s.done)
	s.cond.Broadcast()
}

func (s *sequencer) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}
