package kernel

import "sync"

// refScheduler is a trivial reference Scheduler implementation; it
// exists only so msg_test.go/delegate_test.go can exercise real
// goroutine-backed threads.
//
// Each Thread gets a buffered wake channel. Sleep blocks the calling
// goroutine on a receive from that channel with the kernel critical
// section released; MakeReady stores the reply in the thread's rdyMsg
// slot and sends on the channel. The buffer size of 1 means a MakeReady
// that races ahead of the matching Sleep is not lost.
type refScheduler struct {
	mu sync.Mutex
	wk map[*Thread]chan struct{}

	port *testPort // released/reacquired around Sleep, like the real Port
}

func newRefScheduler(port *testPort) *refScheduler {
	return &refScheduler{wk: make(map[*Thread]chan struct{}), port: port}
}

func (s *refScheduler) chanFor(t *Thread) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.wk[t]
	if !ok {
		ch = make(chan struct{}, 1)
		s.wk[t] = ch
	}
	return ch
}

func (s *refScheduler) MakeReady(t *Thread, reply Reply) {
	t.rdyMsg = reply
	t.State = ThreadReady
	ch := s.chanFor(t)
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *refScheduler) Sleep(t *Thread, state ThreadState) {
	t.State = state
	ch := s.chanFor(t)
	s.port.LeaveCritical()
	<-ch
	s.port.EnterCritical()
}
