// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// Synchronous thread messaging: a sender queues on the receiver, parks
// until the receiver releases it, and carries the receiver's reply back.
// Since this package has no global "currently running thread" pointer,
// every entry point takes the calling Thread explicitly as self.
//
// FIFO vs. priority insertion reuses the queue type (queue.go), a second
// instantiation of the same intrusive-list-with-sentinel-header idiom
// the delta list uses.

// EventSource is the minimal collaborator SendWithEvent needs: something
// that can be pulsed while the kernel lock is held. The full
// event-source machinery belongs to the scheduler side, same as
// Scheduler itself.
type EventSource interface {
	SignalI()
}

func priorityOf(n *qNode) int {
	return threadOf(n).Priority
}

// threadOf recovers the owning *Thread from its embedded qnode.
func threadOf(n *qNode) *Thread {
	return n.owner
}

// sleepTraced records a context-switch trace entry before parking self,
// then delegates to the Scheduler. The next-to-run id is always recorded
// as 0: the actual scheduling decision belongs to the external
// Scheduler, which this package never observes picking a specific
// successor.
func (k *Kernel) sleepTraced(self *Thread, waitObj interface{}, prevState, sleepState ThreadState) {
	k.traceSwitch(waitObj, prevState, 0)
	k.scheduler.Sleep(self, sleepState)
}

func (tp *Thread) insertSender(self *Thread) {
	self.qnode.owner = self
	if tp.MsgByPrio {
		tp.senderQ.prioInsert(&self.qnode, self.Priority, priorityOf)
	} else {
		tp.senderQ.fifoInsert(&self.qnode)
	}
}

// Send performs a synchronous rendez-vous with no timeout: self queues
// on tp, parks until tp releases it, and returns tp's reply.
func (k *Kernel) Send(self, tp *Thread, msg interface{}) Reply {
	k.lock()
	k.assertNotInCallback("Send")
	tp.insertSender(self)
	self.msg = msg
	self.wtThread = tp
	if tp.State == ThreadWaitingForMessage {
		k.scheduler.MakeReady(tp, ReplyOK)
	}
	prevState := self.State
	self.State = ThreadSendingMessage
	k.sleepTraced(self, tp, prevState, ThreadSendingMessage)
	reply := self.rdyMsg
	k.unlock()
	return reply
}

// SendWithEvent is Send plus an event pulse delivered atomically while
// still holding the lock. Precondition: tp is not currently parked in
// Wait. A thread waiting on events-or-messages is woken via the event
// and observes the pending message itself, so unlike Send, SendWithEvent
// never calls MakeReady directly.
func (k *Kernel) SendWithEvent(self, tp *Thread, msg interface{}, es EventSource) (Reply, error) {
	k.lock()
	k.assertNotInCallback("SendWithEvent")
	if tp.State == ThreadWaitingForMessage {
		k.unlock()
		return 0, ErrReceiverWaiting
	}
	tp.insertSender(self)
	es.SignalI()
	self.wtThread = tp
	self.msg = msg
	prevState := self.State
	self.State = ThreadSendingMessage
	k.sleepTraced(self, tp, prevState, ThreadSendingMessage)
	reply := self.rdyMsg
	k.unlock()
	return reply, nil
}

// wakeupSender is the SendTimeout timer callback: it removes the caller
// from whatever sender queue it is still waiting in and wakes it with
// ReplyTimeout. Timer callbacks run with the kernel lock released, so it
// reacquires the lock itself before touching queue state.
func wakeupSender(k *Kernel, _ *Timer, arg interface{}) {
	self := arg.(*Thread)
	k.lock()
	defer k.unlock()
	if self.State != ThreadSendingMessage {
		// Release won the race between the alarm firing and this
		// callback acquiring the lock; nothing left to cancel.
		return
	}
	tp := self.wtThread
	tp.senderQ.remove(&self.qnode)
	k.scheduler.MakeReady(self, ReplyTimeout)
}

// SendTimeout is Send bounded by a timeout: a virtual timer cancels the
// wait and wakes the sender with ReplyTimeout if the receiver has not
// released it by then.
func (k *Kernel) SendTimeout(self, tp *Thread, msg interface{}, timeout Interval) Reply {
	k.lock()
	k.assertNotInCallback("SendTimeout")

	self.timeout.node.timer = &self.timeout
	self.timeout.callback = wakeupSender
	self.timeout.arg = self
	k.enqueueLocked(&self.timeout, k.port.GetTick(), timeout)

	tp.insertSender(self)
	self.msg = msg
	self.wtThread = tp
	if tp.State == ThreadWaitingForMessage {
		k.scheduler.MakeReady(tp, ReplyOK)
	}
	prevState := self.State
	self.State = ThreadSendingMessage
	k.sleepTraced(self, tp, prevState, ThreadSendingMessage)
	reply := self.rdyMsg

	if self.timeout.node.armed() {
		k.disarmLocked(&self.timeout)
	}

	k.unlock()
	return reply
}

// Wait blocks until at least one sender is queued on self, then returns
// the head sender's message without dequeuing it. The sender stays
// queued until Release.
func (k *Kernel) Wait(self *Thread) interface{} {
	k.lock()
	k.assertNotInCallback("Wait")
	if self.senderQ.isEmpty() {
		prevState := self.State
		self.State = ThreadWaitingForMessage
		k.sleepTraced(self, nil, prevState, ThreadWaitingForMessage)
	}
	msg := k.getLocked(self)
	k.unlock()
	return msg
}

// Get is the non-blocking peek at the head sender's message. ok is false
// iff no sender is queued.
func (k *Kernel) Get(self *Thread) (msg interface{}, ok bool) {
	k.lock()
	defer k.unlock()
	if self.senderQ.isEmpty() {
		return nil, false
	}
	return k.getLocked(self), true
}

func (k *Kernel) getLocked(self *Thread) interface{} {
	head := self.senderQ.first()
	return threadOf(head).msg
}

// wakeupWaiter is WaitTimeout's timer callback: it wakes a receiver
// still parked in ThreadWaitingForMessage with ReplyTimeout. If a sender
// already made the receiver ready between the alarm firing and this
// callback acquiring the lock, it is a no-op.
func wakeupWaiter(k *Kernel, _ *Timer, arg interface{}) {
	self := arg.(*Thread)
	k.lock()
	defer k.unlock()
	if self.State != ThreadWaitingForMessage {
		return
	}
	k.scheduler.MakeReady(self, ReplyTimeout)
}

// WaitTimeout is Wait bounded by a timeout on the receive side, used by
// DispatchTimeout (delegate.go). reply is ReplyTimeout, with a nil msg,
// if no sender arrived in time.
func (k *Kernel) WaitTimeout(self *Thread, timeout Interval) (msg interface{}, reply Reply) {
	k.lock()
	k.assertNotInCallback("WaitTimeout")
	if self.senderQ.isEmpty() {
		self.timeout.node.timer = &self.timeout
		self.timeout.callback = wakeupWaiter
		self.timeout.arg = self
		k.enqueueLocked(&self.timeout, k.port.GetTick(), timeout)

		prevState := self.State
		self.State = ThreadWaitingForMessage
		k.sleepTraced(self, nil, prevState, ThreadWaitingForMessage)

		if self.timeout.node.armed() {
			k.disarmLocked(&self.timeout)
		}

		if self.senderQ.isEmpty() {
			k.unlock()
			return nil, ReplyTimeout
		}
	}
	msg = k.getLocked(self)
	k.unlock()
	return msg, ReplyOK
}

// Release dequeues the head sender and wakes it with reply. Releasing
// with an empty sender queue halts in debug builds and returns
// ErrEmptySenderQueue otherwise.
func (k *Kernel) Release(self *Thread, reply Reply) error {
	k.lock()
	defer k.unlock()
	if self.senderQ.isEmpty() {
		if debugAssertOn() {
			PANIC("msg: release with an empty sender queue on thread %d\n", self.ID)
		}
		return ErrEmptySenderQueue
	}
	node := self.senderQ.removeFirst()
	sender := threadOf(node)
	k.scheduler.MakeReady(sender, reply)
	return nil
}
