// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// ThreadState enumerates the thread states messaging must observe or
// set. The scheduler's full state machine (ready queues, run states,
// timed sleep) lives in whatever Scheduler implementation the port
// provides.
type ThreadState uint8

const (
	// ThreadReady: runnable, waiting for the scheduler to pick it.
	ThreadReady ThreadState = iota
	// ThreadRunning: currently executing.
	ThreadRunning
	// ThreadWaitingForMessage: blocked in Wait with an empty sender
	// queue.
	ThreadWaitingForMessage
	// ThreadSendingMessage: blocked in Send* waiting for Release.
	ThreadSendingMessage
	// ThreadOther covers every scheduler state messaging does not care
	// about (timed sleep, suspended, ...); the scheduler is free to use
	// its own richer enum internally and report ThreadOther here.
	ThreadOther
)

// Reply is the recoverable outcome carried in a thread's reply slot: the
// result of Release, a timeout, or a cancellation.
type Reply int32

const (
	// ReplyOK is the normal outcome: the receiver released the sender.
	ReplyOK Reply = 0
	// ReplyTimeout is returned by SendTimeout when the timer fires
	// before Release.
	ReplyTimeout Reply = -1
	// ReplyReset is returned to a sender woken by cancellation rather
	// than by Release or timeout.
	ReplyReset Reply = -2
)

// Thread is the per-thread state the messaging and delegate subsystems
// need: run state, priority, the in-flight message and reply slots, and
// the intrusive queue node used to wait on a receiver's sender queue.
// Everything else about a thread (stack, register context, full
// scheduler state) belongs to the Scheduler.
type Thread struct {
	ID       uint32
	Priority int
	State    ThreadState

	// MsgByPrio selects FIFO vs. priority-ordered insertion into this
	// thread's sender queue when it is acting as a receiver.
	MsgByPrio bool

	senderQ queue // waiting senders, valid when this thread is a receiver

	qnode  qNode       // this thread's link when it is itself a waiting sender
	msg    interface{} // message written by the sender
	rdyMsg Reply       // reply written by the receiver on release

	wtThread *Thread // receiver this thread is currently sending to

	timeout Timer // armed by SendTimeout/WaitTimeout
}

// NewThread builds a Thread ready to act as a messaging receiver and/or
// sender. Threads must not be used zero-valued: the sender queue's
// sentinel header needs its self-referential next/prev before
// isEmpty/insert are meaningful.
func NewThread(id uint32, priority int, msgByPrio bool) *Thread {
	t := &Thread{ID: id, Priority: priority, MsgByPrio: msgByPrio}
	t.senderQ.init()
	return t
}

// Scheduler is the external collaborator that actually moves threads
// between run states. Messaging depends on exactly two operations from
// it.
type Scheduler interface {
	// MakeReady transitions t to ThreadReady (or runs it immediately,
	// scheduler's choice) with the given reply value already stored in
	// t's reply slot, and returns control to the caller without
	// blocking. Used to wake a sender on release/timeout, and to wake a
	// receiver that was parked in Wait.
	MakeReady(t *Thread, reply Reply)

	// Sleep blocks the calling thread t, transitioning it to the given
	// state, and does not return until some other party calls
	// MakeReady(t, ...). Must be called with the kernel critical
	// section held; Sleep releases it for the duration of the block and
	// reacquires it before returning.
	Sleep(t *Thread, state ThreadState)
}
