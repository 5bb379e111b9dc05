// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

import (
	"strconv"
)

// Tick is a monotonically increasing hardware tick count. It wraps modulo
// 2^Width.Bits and has no fixed zero or reference value: two Ticks can only
// be meaningfully compared if their difference is strictly less than half
// the configured tick range (see Width.LT/GT/GE/LE).
type Tick uint64

// Interval is a duration expressed in ticks, wide enough to hold any
// meaningful delay. MaxInterval (returned by Width.MaxInterval) is a
// reserved sentinel and is never a legal user delay.
type Interval uint64

// Width describes the modulus used for Tick/Interval arithmetic. A Width is
// derived once (NewWidth) from the configured tick resolution (e.g. 16 or
// 32 bits for a Cortex-M SysTick) and reused for every Tick/Interval
// operation; keeping it a runtime value lets the same code serve a 16-bit
// or 32-bit port without recompilation.
type Width struct {
	bits    uint
	mask    uint64
	halfBit uint64 // 1 << (bits-1), used to detect wrap in comparisons
}

// NewWidth builds a Width for the given number of significant bits.
// bits must be in [2, 63].
func NewWidth(bits uint) Width {
	if bits < 2 || bits > 63 {
		panic("kernel: invalid tick width")
	}
	mask := (uint64(1) << bits) - 1
	return Width{bits: bits, mask: mask, halfBit: uint64(1) << (bits - 1)}
}

// Bits returns the configured tick resolution.
func (w Width) Bits() uint { return w.bits }

// MaxInterval returns the reserved sentinel interval for this width: the
// all-ones value representable in Bits bits. It is never a legal delay.
func (w Width) MaxInterval() Interval {
	return Interval(w.mask)
}

func (w Width) mask64(u uint64) uint64 {
	return u & w.mask
}

// NewTick truncates u to a valid Tick for this width.
func (w Width) NewTick(u uint64) Tick {
	return Tick(w.mask64(u))
}

// Add returns t advanced by d ticks, wrapping modulo 2^Bits.
func (w Width) Add(t Tick, d Interval) Tick {
	return Tick(w.mask64(uint64(t) + uint64(d)))
}

// AddUint64 is Add with a raw uint64 delta.
func (w Width) AddUint64(t Tick, d uint64) Tick {
	return Tick(w.mask64(uint64(t) + d))
}

// Sub returns the tick d ticks before t (t - d), wrapping modulo 2^Bits.
func (w Width) Sub(t Tick, d Interval) Tick {
	return Tick(w.mask64(uint64(t) - uint64(d)))
}

// Diff returns (b - a) interpreted modulo the tick width, as a
// non-negative Interval. The caller must know b is "later or equal" to a
// within less than half the tick range; otherwise the result wraps and is
// meaningless.
func (w Width) Diff(a, b Tick) Interval {
	return Interval(w.mask64(uint64(b) - uint64(a)))
}

// diffWrap reports whether d, interpreted as a tick difference, carries the
// sign bit for this width (i.e. represents a "negative"/wrapped value).
func (w Width) diffWrap(d uint64) bool {
	return (d & w.halfBit) != 0
}

// EQ reports whether a and b are the same tick, accounting for wraparound.
func (w Width) EQ(a, b Tick) bool {
	return w.mask64(uint64(a)-uint64(b)) == 0
}

// NE is the negation of EQ.
func (w Width) NE(a, b Tick) bool {
	return !w.EQ(a, b)
}

// LT reports whether a is strictly before b.
func (w Width) LT(a, b Tick) bool {
	return w.diffWrap(w.mask64(uint64(a) - uint64(b)))
}

// GT reports whether a is strictly after b.
func (w Width) GT(a, b Tick) bool {
	return !w.LT(a, b) && w.NE(a, b)
}

// GE reports whether a is at or after b.
func (w Width) GE(a, b Tick) bool {
	return !w.diffWrap(w.mask64(uint64(a) - uint64(b)))
}

// LE reports whether a is at or before b.
func (w Width) LE(a, b Tick) bool {
	return w.LT(a, b) || w.EQ(a, b)
}

// TickString renders a Tick for debugging/tracing.
func TickString(t Tick) string {
	return strconv.FormatUint(uint64(t), 10)
}
