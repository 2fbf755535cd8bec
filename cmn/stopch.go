package cmn

import "sync"

// StopCh is a broadcast, close-once stop signal, the same shape a
// transport collector loop selects on. Multiple goroutines may call
// Listen() and will all observe the close.
type StopCh struct {
	once sync.Once
	ch   chan struct{}
}

// NewStopCh constructs a ready-to-use StopCh.
func NewStopCh() *StopCh {
	return &StopCh{ch: make(chan struct{})}
}

// Listen returns the channel that closes when Close is called.
func (s *StopCh) Listen() <-chan struct{} {
	return s.ch
}

// Close signals stop. Safe to call more than once or concurrently.
func (s *StopCh) Close() {
	s.once.Do(func() { close(s.ch) })
}
