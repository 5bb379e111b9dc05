// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// TimerFunc is a callback invoked when a Timer expires. It runs in
// alarm-interrupt context with the kernel critical section released for
// its duration and must never sleep; it may arm or disarm any timer,
// including the one that just fired.
type TimerFunc func(k *Kernel, t *Timer, arg interface{})

// Timer is the caller-owned, statically-allocated handle for a virtual
// timer. It must be zero-initialised before first use; the engine arms
// it via Set/SetContinuous and disarms it via Reset or by firing (when
// reload is 0).
type Timer struct {
	node vtNode // delta-list link; node.armed() iff this timer is on the list

	expire Tick     // absolute deadline in ticks, valid while armed
	reload Interval // 0 for one-shot, >0 for a continuous (periodic) timer

	callback TimerFunc
	arg      interface{}
}

// IsArmed reports whether the timer is currently armed (linked into the
// engine's delta list).
func (t *Timer) IsArmed() bool {
	return t.node.armed()
}

// Expire returns the timer's absolute deadline in ticks. Only meaningful
// while the timer is armed.
func (t *Timer) Expire() Tick {
	return t.expire
}
