package lifecycle

import "sync"

// signal is a level-triggered flag with a wake-up channel, the Go shape of a
// threading.Event that can also sit in a select.
type signal struct {
	mu  sync.Mutex
	set bool
	ch  chan struct{}
}

func newSignal() *signal {
	return &signal{ch: make(chan struct{}, 1)}
}

func (s *signal) raise() {
	s.mu.Lock()
	s.set = true
	s.mu.Unlock()
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

func (s *signal) isSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set
}

// consume clears the flag and reports whether it was set.
func (s *signal) consume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.set
	s.set = false
	select {
	case <-s.ch:
	default:
	}
	return was
}

func (s *signal) wait() <-chan struct{} { return s.ch }
