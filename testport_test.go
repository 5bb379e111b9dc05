package kernel

import (
	"sync"
	"testing"
)

// testPort is the injectable clock/port used by every _test.go file in
// this package: time only moves when a test calls AdvanceTo, and EnterCritical/
// LeaveCritical are a real sync.Mutex so tests that simulate concurrent
// "threads" with real goroutines (msg_test.go, delegate_test.go) get
// the same mutual exclusion a disable-interrupts critical section would
// give a single physical core.
//
// Every method except AdvanceTo/EnterCritical/LeaveCritical is only ever
// invoked by the kernel from inside a critical section it already holds
// (same contract as the real Port), so they don't take mu themselves --
// mu is not reentrant, and EnterCritical already serializes access to
// tick/alarm for the duration of the call.
type testPort struct {
	mu sync.Mutex

	tick Tick

	alarmOn bool
	alarmAt Tick

	console []string
	halted  bool
	haltMsg string

	t *testing.T
}

func newTestPort(t *testing.T) *testPort {
	return &testPort{t: t}
}

func (p *testPort) GetTick() Tick {
	return p.tick
}

// AdvanceTo moves the simulated tick counter forward. It does not itself
// invoke DoTick: tests call k.DoTick() explicitly once the tick has been
// advanced, mirroring the real ISR/alarm-interrupt boundary. Takes the
// same lock as EnterCritical, since it is called from the test's driver
// goroutine rather than from inside a held critical section.
func (p *testPort) AdvanceTo(tick Tick) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tick = tick
}

func (p *testPort) StartAlarm(at Tick) {
	if p.alarmOn {
		p.t.Fatalf("testPort: StartAlarm called while already armed\n")
	}
	p.alarmOn = true
	p.alarmAt = at
}

func (p *testPort) SetAlarm(at Tick) {
	if !p.alarmOn {
		p.t.Fatalf("testPort: SetAlarm called while not armed\n")
	}
	p.alarmAt = at
}

func (p *testPort) StopAlarm() {
	p.alarmOn = false
}

// AlarmState is a test-only accessor; callers should hold the kernel's
// critical section (or know no other goroutine is touching the kernel)
// before trusting its result.
func (p *testPort) AlarmState() (on bool, at Tick) {
	return p.alarmOn, p.alarmAt
}

func (p *testPort) EnterCritical() { p.mu.Lock() }
func (p *testPort) LeaveCritical() { p.mu.Unlock() }

func (p *testPort) Puts(msg string) {
	p.console = append(p.console, msg)
}

func (p *testPort) Halt(msg string) {
	p.halted = true
	p.haltMsg = msg
	panic("testPort halt: " + msg)
}
