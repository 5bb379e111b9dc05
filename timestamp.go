// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// GetTimeStamp derives a wide, non-decreasing counter from the
// narrower wrapping tick: the forward distance from the last sample is
// measured in the narrow tick modulus and folded into the wide counter,
// so a wrap of the hardware counter never makes the stamp go backwards.
//
// Contract: monotonic between calls, provided callers sample at least
// once per half the tick range.
func (k *Kernel) GetTimeStamp() uint64 {
	k.lock()
	defer k.unlock()
	return k.getTimeStampLocked()
}

func (k *Kernel) getTimeStampLocked() uint64 {
	now := k.port.GetTick()
	last := k.laststamp
	delta := k.width.Diff(k.width.NewTick(last), now)
	stamp := last + uint64(delta)
	if stamp < last {
		PANIC("timestamp: wide counter wrapped (last=%d delta=%d)\n", last, delta)
	}
	k.laststamp = stamp
	return stamp
}

// ResetTimeStamp reinitialises the wide counter to the current tick,
// discarding accumulated history.
func (k *Kernel) ResetTimeStamp() {
	k.lock()
	defer k.unlock()
	k.laststamp = uint64(k.port.GetTick())
}
