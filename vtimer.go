// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// Virtual-timer engine: a single sorted delta list driven by one
// hardware alarm. Each armed timer stores only the distance to its
// predecessor, so advancing time touches nothing but the head; absolute
// deadlines are reconstructed as lasttime plus the accumulated deltas.
// Insertion and removal transiently corrupt the header's sentinel delta
// and then unconditionally restore it, which avoids an "is this the
// header" special case at every touch point.

// Set arms t as a one-shot timer: delay ticks from now, cb is invoked
// with arg. t must not already be armed.
func (k *Kernel) Set(t *Timer, delay Interval, cb TimerFunc, arg interface{}) error {
	return k.arm(t, delay, 0, cb, arg)
}

// SetContinuous arms t as a periodic timer with the given period: after
// each firing the engine automatically re-arms it for another period,
// minus whatever time the callback itself consumed, so the period does
// not drift.
func (k *Kernel) SetContinuous(t *Timer, period Interval, cb TimerFunc, arg interface{}) error {
	return k.arm(t, period, period, cb, arg)
}

func (k *Kernel) arm(t *Timer, delay, reload Interval, cb TimerFunc, arg interface{}) error {
	if cb == nil {
		return ErrNilCallback
	}
	if delay == 0 {
		if debugAssertOn() {
			PANIC("vtimer: immediate delay passed for timer %p\n", t)
		}
		return ErrImmediate
	}
	if uint64(delay) >= uint64(k.width.MaxInterval()) {
		return ErrTooLong
	}

	k.lock()
	defer k.unlock()

	if t.node.armed() {
		if debugAssertOn() {
			PANIC("vtimer: arming an already armed timer %p\n", t)
		}
		return ErrArmedTimer
	}
	t.node.timer = t
	t.callback = cb
	t.arg = arg
	t.reload = reload
	k.enqueueLocked(t, k.port.GetTick(), delay)
	return nil
}

// enqueueLocked links t into the delta list so it fires delay ticks
// after now, maintaining the invariant that every node's delta is
// measured from its predecessor. Must be called with the critical
// section held.
func (k *Kernel) enqueueLocked(t *Timer, now Tick, delay Interval) {
	if k.tickless && delay < k.minDelta {
		delay = k.minDelta
	}
	t.expire = k.width.Add(now, delay)

	if k.vtlist.isEmpty() {
		k.lasttime = now
		k.vtlist.insertBefore(&k.vtlist.head, &t.node, delay)
		if k.tickless {
			k.startAlarm(k.clampAlarm(k.width.Add(now, delay)))
		}
		return
	}

	// deltanow is how far the list's time base (lasttime) lags real
	// "now"; the new timer's position is expressed relative to that
	// same base.
	deltanow := k.width.Diff(k.lasttime, now)
	maxDelta := uint64(k.width.MaxInterval())
	raw := uint64(deltanow) + uint64(delay)

	var delta Interval
	if raw >= maxDelta {
		// The candidate delta would overflow the interval type:
		// collapse every leading node's delta down by deltanow first,
		// so the list's base catches up to now before the new node is
		// placed.
		k.compress(deltanow)
		delta = delay
	} else {
		delta = Interval(raw)
	}

	// "<=" places the new timer after any already-armed timer with the
	// same deadline, so equal deadlines fire in arrival order.
	scan := k.vtlist.head.next
	for scan != &k.vtlist.head && uint64(scan.delta) <= uint64(delta) {
		delta -= scan.delta
		scan = scan.next
	}
	k.vtlist.insertBefore(scan, &t.node, delta)
	// Unconditional subtract from the successor (which, when scan is
	// the header, transiently corrupts its sentinel), then
	// unconditional sentinel restore.
	scan.delta -= delta
	k.vtlist.head.delta = k.width.MaxInterval()

	if k.tickless && k.vtlist.head.next == &t.node {
		// The new timer became the earliest deadline: reprogram the
		// alarm, which is already running (the list was non-empty).
		k.setAlarm(k.clampAlarm(k.width.Add(k.lasttime, t.node.delta)))
	}
}

// compress collapses deltanow ticks out of the list's leading deltas and
// advances lasttime by the same amount, so that subsequent arithmetic
// against "now" cannot overflow the interval type. Every absolute
// deadline at or after the new lasttime is preserved exactly; nodes whose
// deadline has already passed are left with delta 0, i.e. due at the new
// lasttime.
func (k *Kernel) compress(deltanow Interval) {
	remaining := deltanow
	n := k.vtlist.head.next
	for n != &k.vtlist.head && remaining > 0 {
		if n.delta <= remaining {
			remaining -= n.delta
			n.delta = 0
			n = n.next
		} else {
			n.delta -= remaining
			remaining = 0
		}
	}
	k.lasttime = k.width.Add(k.lasttime, deltanow)
}

// Reset disarms t, removing it from the delta list and reprogramming
// the alarm if t was the earliest deadline. Disarming a timer that is
// not armed halts in debug builds and returns ErrNotArmed otherwise.
func (k *Kernel) Reset(t *Timer) error {
	k.lock()
	defer k.unlock()
	if !t.node.armed() {
		if debugAssertOn() {
			PANIC("vtimer: resetting an unarmed timer %p\n", t)
		}
		return ErrNotArmed
	}
	k.disarmLocked(t)
	return nil
}

// disarmLocked unlinks t from the delta list, folding its delta into its
// successor, and reprograms or stops the alarm if removing t changes the
// earliest deadline. Must be called with the critical section held and t
// known to be armed.
func (k *Kernel) disarmLocked(t *Timer) {
	wasFirst := k.vtlist.head.next == &t.node
	next := t.node.next

	// Unconditional fold-in, then unconditional sentinel restore, same
	// idiom as enqueueLocked.
	next.delta += t.node.delta
	k.vtlist.dequeue(&t.node)
	k.vtlist.head.delta = k.width.MaxInterval()

	t.callback = nil
	t.arg = nil
	t.reload = 0

	if !k.tickless || !wasFirst {
		return
	}
	if k.vtlist.isEmpty() {
		k.stopAlarm()
		return
	}
	newHead := k.vtlist.head.next
	if newHead.delta == 0 {
		// A tick interrupt is already due and will pick this up.
		return
	}
	now := k.port.GetTick()
	nowdelta := k.width.Diff(k.lasttime, now)
	if uint64(nowdelta) >= uint64(newHead.delta) {
		// The alarm interrupt for the old head is already pending or in
		// flight; let it run and reprogram from there.
		return
	}
	wait := newHead.delta - nowdelta
	if wait < k.minDelta {
		wait = k.minDelta
	}
	k.setAlarm(k.clampAlarm(k.width.Add(k.lasttime, wait)))
}

// IsArmed reports whether t is currently armed.
func (k *Kernel) IsArmed(t *Timer) bool {
	k.lock()
	defer k.unlock()
	return t.node.armed()
}

// Remaining returns the number of ticks left before t fires. Returns
// ErrNotArmed if t is not armed.
func (k *Kernel) Remaining(t *Timer) (Interval, error) {
	k.lock()
	defer k.unlock()
	if !t.node.armed() {
		return 0, ErrNotArmed
	}
	var sum uint64
	found := false
	for n := k.vtlist.head.next; n != &k.vtlist.head; n = n.next {
		sum += uint64(n.delta)
		if n == &t.node {
			found = true
			break
		}
	}
	if !found {
		if debugAssertOn() {
			PANIC("vtimer: armed timer %p not found on its own engine's list\n", t)
		}
		return 0, ErrNotArmed
	}
	if k.tickless {
		now := k.port.GetTick()
		nowdelta := uint64(k.width.Diff(k.lasttime, now))
		if nowdelta >= sum {
			return 0, nil
		}
		sum -= nowdelta
	}
	return Interval(sum), nil
}

// DoTick is the timer engine's entry point from the tick/alarm interrupt
// handler. Callers invoke it from whatever context plays the role of the
// hardware interrupt; it takes the critical section itself and releases
// it around every callback invocation.
func (k *Kernel) DoTick() {
	k.lock()
	if k.tickless {
		k.doTickTickless()
	} else {
		k.doTickPeriodic()
	}
	k.unlock()
}

// doTickTickless handles the alarm firing in tickless mode: the list's
// earliest deadline elapsed (or several did, if the callbacks below take
// long enough that more deadlines pass while the lock is released). Fire
// every node whose delta has been consumed, then reprogram the alarm for
// whatever remains.
func (k *Kernel) doTickTickless() {
	now := k.port.GetTick()
	nowdelta := k.width.Diff(k.lasttime, now)

	for !k.vtlist.isEmpty() && uint64(k.vtlist.head.next.delta) <= uint64(nowdelta) {
		head := k.vtlist.head.next
		t := head.timer

		k.lasttime = k.width.Add(k.lasttime, head.delta)
		nowdelta -= head.delta
		firedAt := k.lasttime

		k.vtlist.dequeue(head)
		k.vtlist.head.delta = k.width.MaxInterval()

		if k.vtlist.isEmpty() {
			// Speculative stop: the callback below, or the reload
			// re-enqueue, may restart it.
			k.stopAlarm()
		}

		cb, arg, reload := t.callback, t.arg, t.reload
		t.callback = nil
		t.arg = nil

		k.inCallback = true
		k.unlock()
		cb(k, t, arg)
		k.lock()
		k.inCallback = false

		// The callback may have armed or disarmed timers and consumed
		// time; refresh before deciding what else expired.
		now = k.port.GetTick()
		nowdelta = k.width.Diff(k.lasttime, now)

		if reload > 0 {
			skipped := k.width.Diff(firedAt, now)
			var delay Interval
			if uint64(skipped) <= uint64(reload) {
				delay = reload - skipped
			} else {
				BUG("vtimer: periodic timer %p missed its deadline (skipped %d > reload %d)\n", t, skipped, reload)
				delay = 0
			}
			t.node.timer = t
			t.reload = reload
			k.enqueueLocked(t, now, delay)
		}
	}

	if k.vtlist.isEmpty() {
		return
	}
	nextDelta := k.vtlist.head.next.delta
	var wait Interval
	if uint64(nextDelta) > uint64(nowdelta) {
		wait = nextDelta - nowdelta
	}
	if wait < k.minDelta {
		wait = k.minDelta
	}
	k.setAlarm(k.clampAlarm(k.width.Add(k.lasttime, wait)))
}

// doTickPeriodic handles one system tick in periodic mode: the head
// node's delta is decremented by one, firing whatever reaches zero.
func (k *Kernel) doTickPeriodic() {
	k.swTicks++
	if k.vtlist.isEmpty() {
		return
	}
	k.vtlist.head.next.delta--

	for !k.vtlist.isEmpty() && k.vtlist.head.next.delta == 0 {
		head := k.vtlist.head.next
		t := head.timer

		k.vtlist.dequeue(head)
		k.vtlist.head.delta = k.width.MaxInterval()

		cb, arg, reload := t.callback, t.arg, t.reload
		t.callback = nil
		t.arg = nil

		k.inCallback = true
		k.unlock()
		cb(k, t, arg)
		k.lock()
		k.inCallback = false

		if reload > 0 {
			t.node.timer = t
			t.reload = reload
			k.enqueueLocked(t, k.port.GetTick(), reload)
		}
	}
}
