// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

import (
	"fmt"

	"github.com/intuitivelabs/timestamp"
)

// traceBufferSize is the capacity of the context-switch trace buffer.
const traceBufferSize = 64

// traceEntry records one context switch. wallTime additionally anchors
// the entry to a wall-clock sample, since the tick-domain time field
// wraps and cannot correlate trace entries once enough wraps separate a
// fault from its post-mortem inspection.
type traceEntry struct {
	waitObj   interface{} // the object the outgoing thread was waiting on
	time      Tick
	wallTime  timestamp.TS
	prevState ThreadState
	nextID    uint32 // next thread's id, when known
}

// traceBuffer is the circular buffer of traceEntry. count tracks how
// many records have ever been written (saturating at traceBufferSize),
// so Snapshot knows how much of buf is meaningful without comparing
// traceEntry values (waitObj may hold an uncomparable dynamic type, so a
// zero-value equality check is not safe here).
type traceBuffer struct {
	buf   [traceBufferSize]traceEntry
	pos   int
	count int
}

func (tb *traceBuffer) record(e traceEntry) {
	tb.buf[tb.pos] = e
	tb.pos++
	if tb.pos >= traceBufferSize {
		tb.pos = 0
	}
	if tb.count < traceBufferSize {
		tb.count++
	}
}

// Snapshot returns a copy of the trace buffer contents in insertion
// order, oldest first. Intended for post-mortem inspection, not for use
// on the hot path.
func (tb *traceBuffer) Snapshot() []traceEntry {
	out := make([]traceEntry, 0, tb.count)
	start := tb.pos - tb.count
	for i := 0; i < tb.count; i++ {
		idx := ((start+i)%traceBufferSize + traceBufferSize) % traceBufferSize
		out = append(out, tb.buf[idx])
	}
	return out
}

// currCore is the most recently constructed Kernel. It exists so
// package-level invariant checks (vtlist.go, queue.go) that have no
// Kernel receiver in hand can still reach a Port to halt through.
var currCore *Kernel

// debugAssertOn reports whether the process-wide Kernel was built with
// Config.Debug set, gating the programmer-error checks. With no Kernel
// constructed yet, assertions default on so early corruption is never
// silently swallowed.
func debugAssertOn() bool {
	return currCore == nil || currCore.debug
}

// halt is the package-level panic/halt path used by PANIC (log.go) and
// by any code that detects corruption without a Kernel reference at
// hand.
func halt(f string, args ...interface{}) {
	msg := fmt.Sprintf(f, args...)
	if currCore != nil {
		currCore.haltWith(msg)
		return
	}
	panic("kernel: " + msg)
}

// Panic records msg, emits it through the Port's console interface and
// halts.
func (k *Kernel) Panic(msg string) {
	k.haltWith(msg)
}

func (k *Kernel) haltWith(msg string) {
	k.panicMsg = msg
	k.port.Puts("PANIC: " + msg)
	k.port.Halt(msg)
}

// traceSwitch appends a context-switch record to the kernel's trace
// buffer. Must be called with the critical section held.
func (k *Kernel) traceSwitch(waitObj interface{}, prevState ThreadState, nextID uint32) {
	k.trace.record(traceEntry{
		waitObj:   waitObj,
		time:      k.port.GetTick(),
		wallTime:  timestamp.Now(),
		prevState: prevState,
		nextID:    nextID,
	})
}

// TraceSnapshot returns a copy of the kernel's context-switch trace
// buffer, oldest entry first. Intended for post-mortem inspection after
// a Panic.
func (k *Kernel) TraceSnapshot() []traceEntry {
	return k.trace.Snapshot()
}
