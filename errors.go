// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

import (
	"errors"
)

// Sentinel errors for the messaging and delegate subsystems. The
// timer-specific sentinels live in kernel.go, next to the engine that
// returns them.
var (
	// ErrEmptySenderQueue is returned by Release when the receiver's
	// sender queue is empty.
	ErrEmptySenderQueue = errors.New("kernel: release called with an empty sender queue")

	// ErrReceiverWaiting is returned by SendWithEvent when the receiver
	// is already parked in Wait.
	ErrReceiverWaiting = errors.New("kernel: send with event requires the receiver not be waiting")

	// ErrNoCallMessage is returned by DispatchTimeout when no call
	// message arrives in time.
	ErrNoCallMessage = errors.New("kernel: dispatch timed out waiting for a call message")
)
