// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// Port is the set of operations the kernel core requires from the
// architecture/port layer: the free-running tick counter, a one-shot
// hardware alarm, the interrupt-disable critical section and a console
// for terminal diagnostics.
//
// EnterCritical/LeaveCritical must nest correctly with respect to a
// single caller: the kernel never calls LeaveCritical from a context
// that did not call the matching EnterCritical, and never blocks while
// holding the critical section.
type Port interface {
	// GetTick reads the free-running hardware tick counter.
	GetTick() Tick

	// StartAlarm arms the one-shot alarm to fire at the given absolute
	// tick. Only ever called while the alarm is known to be stopped.
	StartAlarm(at Tick)

	// SetAlarm reprograms an alarm that is already armed.
	SetAlarm(at Tick)

	// StopAlarm disables the alarm interrupt. Idempotent.
	StopAlarm()

	// EnterCritical disables interrupts, establishing the kernel
	// critical section. Must be paired with a LeaveCritical.
	EnterCritical()

	// LeaveCritical restores interrupts, ending the kernel critical
	// section.
	LeaveCritical()

	// Puts writes a diagnostic string to the port's console interface.
	Puts(msg string)

	// Halt performs a terminal halt after a panic message has been
	// recorded and emitted. Halt must not return; implementations that
	// cannot stop the processor should block forever.
	Halt(msg string)
}
