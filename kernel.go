// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

import "errors"

// Config parameterises a Kernel instance.
type Config struct {
	// TickBits is the hardware tick counter's width in bits, e.g. 16 or
	// 32.
	TickBits uint

	// MinDelta is the minimum delay the engine will ever program into
	// the alarm, protecting against arming it in the past given
	// interrupt-servicing latency. A value of 0 selects periodic-tick
	// mode; a value > 0 selects tickless mode.
	MinDelta Interval

	// AlarmBits is the physical alarm comparator's width, used to clamp
	// absolute alarm values when it is narrower than the tick counter.
	// Defaults to TickBits when 0.
	AlarmBits uint

	// Debug enables the programmer-error checks (arming an armed timer,
	// corrupt list links, sleeping from a timer callback) to halt
	// instead of silently producing undefined behaviour.
	Debug bool
}

// Kernel is the single process-wide kernel core object. It owns the
// virtual-timer engine's delta list, the wide time-stamp counter and the
// debug/trace state; per-thread messaging state lives on the Thread
// values themselves.
type Kernel struct {
	port Port

	width     Width
	minDelta  Interval
	alarmMask uint64 // physical alarm representable range, for clamping
	tickless  bool

	debug bool // gates the assertion checks, see debugAssertOn

	// inCallback is true for the duration of a timer callback
	// invocation, even though the critical section is released around
	// the call. Sleeping primitives assert it is false on entry: a
	// callback runs in alarm-interrupt context and must never block.
	inCallback bool

	vtlist     vtList
	lasttime   Tick
	alarmArmed bool // whether the physical alarm is currently started

	// periodic-tick mode only: software tick counter incremented once
	// per DoTick call.
	swTicks uint64

	laststamp uint64 // wide time-stamp counter

	// scheduler moves threads between run states on behalf of the
	// messaging primitives. Bound once via BindScheduler; nil until
	// then.
	scheduler Scheduler

	panicMsg string
	trace    traceBuffer
}

var (
	// ErrArmedTimer is returned when Set/SetContinuous is called on a
	// timer that is already armed.
	ErrArmedTimer = errors.New("kernel: timer already armed")
	// ErrNotArmed is returned when Reset/Remaining is called on a timer
	// that is not currently armed.
	ErrNotArmed = errors.New("kernel: timer not armed")
	// ErrImmediate is returned when a caller passes a zero delay where
	// the engine requires a genuine delay.
	ErrImmediate = errors.New("kernel: immediate delay not allowed")
	// ErrTooLong is returned when a requested delay cannot be
	// represented in the configured tick width.
	ErrTooLong = errors.New("kernel: delay exceeds max interval")
	// ErrNilCallback is returned by Set/SetContinuous when no callback
	// is supplied.
	ErrNilCallback = errors.New("kernel: timer callback must not be nil")
)

// New constructs a Kernel bound to the given Port and Config. It becomes
// the process-wide instance reachable by the package-level PANIC helper,
// which has no Kernel reference at hand (see currCore in debug.go);
// programs with multiple independent Kernel instances (e.g. per test
// case) should be aware that helper always halts through the most
// recently constructed one.
func New(port Port, cfg Config) *Kernel {
	if cfg.AlarmBits == 0 {
		cfg.AlarmBits = cfg.TickBits
	}
	width := NewWidth(cfg.TickBits)
	k := &Kernel{
		port:      port,
		width:     width,
		minDelta:  cfg.MinDelta,
		alarmMask: (uint64(1) << cfg.AlarmBits) - 1,
		tickless:  cfg.MinDelta > 0,
		debug:     cfg.Debug,
	}
	k.vtlist.init(width)
	currCore = k
	return k
}

// BindScheduler attaches the Scheduler that messaging and the delegate
// dispatcher use to move threads between run states. Must be called once
// before any Send/Wait/Release call.
func (k *Kernel) BindScheduler(s Scheduler) {
	k.scheduler = s
}

// lock/unlock bracket every kernel-data mutation with the port's
// critical section.
func (k *Kernel) lock()   { k.port.EnterCritical() }
func (k *Kernel) unlock() { k.port.LeaveCritical() }

// assertNotInCallback halts if the calling context is a timer callback:
// callbacks run in alarm-interrupt context and must never reach a
// sleeping primitive. Must be called with the critical section held, so
// it observes a stable inCallback.
func (k *Kernel) assertNotInCallback(primitive string) {
	if debugAssertOn() && k.inCallback {
		PANIC("kernel: %s called from a timer callback, which must not sleep\n", primitive)
	}
}

// clampAlarm restricts an absolute alarm tick to what the physical alarm
// comparator can represent.
func (k *Kernel) clampAlarm(at Tick) Tick {
	return Tick(uint64(at) & k.alarmMask)
}

// startAlarm/setAlarm/stopAlarm wrap the Port's alarm trio and keep
// alarmArmed in sync, so the engine always issues the hardware-correct
// call (a comparator that is already running must be reprogrammed with
// SetAlarm, never re-"started").
func (k *Kernel) startAlarm(at Tick) {
	k.port.StartAlarm(at)
	k.alarmArmed = true
}

func (k *Kernel) setAlarm(at Tick) {
	if !k.alarmArmed {
		k.port.StartAlarm(at)
		k.alarmArmed = true
		return
	}
	k.port.SetAlarm(at)
}

func (k *Kernel) stopAlarm() {
	k.port.StopAlarm()
	k.alarmArmed = false
}
