// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// Delegate dispatcher: turns a receiver thread into a serialized
// function-call server for a fixed family of signatures (0 to 4
// arguments, one Reply return slot), using messaging as the transport.
// A Veneer is a plain function value of uniform signature, one concrete
// dispatcher per arity; CallArgs is the typed argument pack the matching
// CallN helper builds. Because Send is synchronous, the caller's
// CallArgs stays live for the whole duration of the remote invocation.

// DelegateFunc0..DelegateFunc4 are the supported target-function
// signatures, one per arity.
type (
	DelegateFunc0 func() Reply
	DelegateFunc1 func(a1 interface{}) Reply
	DelegateFunc2 func(a1, a2 interface{}) Reply
	DelegateFunc3 func(a1, a2, a3 interface{}) Reply
	DelegateFunc4 func(a1, a2, a3, a4 interface{}) Reply
)

// CallArgs is the typed argument pack a Veneer is invoked with: the
// target function for this call's arity, plus up to four message-width
// arguments.
type CallArgs struct {
	fn0 DelegateFunc0
	fn1 DelegateFunc1
	fn2 DelegateFunc2
	fn3 DelegateFunc3
	fn4 DelegateFunc4
	a1  interface{}
	a2  interface{}
	a3  interface{}
	a4  interface{}
}

// Veneer is a thin argument-unpacking trampoline: given the caller's
// argument pack, it extracts the target function and invokes it in the
// dispatching thread's context. veneerFn0..veneerFn4 below are the only
// implementations, one per supported arity.
type Veneer func(*CallArgs) Reply

func veneerFn0(a *CallArgs) Reply { return a.fn0() }
func veneerFn1(a *CallArgs) Reply { return a.fn1(a.a1) }
func veneerFn2(a *CallArgs) Reply { return a.fn2(a.a1, a.a2) }
func veneerFn3(a *CallArgs) Reply { return a.fn3(a.a1, a.a2, a.a3) }
func veneerFn4(a *CallArgs) Reply { return a.fn4(a.a1, a.a2, a.a3, a.a4) }

// callMessage pairs a veneer with its argument pack, sent as an ordinary
// message over the messaging subsystem. No separate teardown step is
// needed: the CallArgs stays reachable for exactly the duration of the
// synchronous call.
type callMessage struct {
	veneer Veneer
	args   *CallArgs
}

func (k *Kernel) call(self, tp *Thread, veneer Veneer, args *CallArgs) Reply {
	return k.Send(self, tp, &callMessage{veneer: veneer, args: args})
}

// Call0..Call4 are the caller side: package the arguments, build the
// call message, and send it synchronously to tp, which must be running
// Dispatch or DispatchTimeout to service it. The returned Reply is the
// delegate's result.
func (k *Kernel) Call0(self, tp *Thread, fn DelegateFunc0) Reply {
	return k.call(self, tp, veneerFn0, &CallArgs{fn0: fn})
}

func (k *Kernel) Call1(self, tp *Thread, fn DelegateFunc1, a1 interface{}) Reply {
	return k.call(self, tp, veneerFn1, &CallArgs{fn1: fn, a1: a1})
}

func (k *Kernel) Call2(self, tp *Thread, fn DelegateFunc2, a1, a2 interface{}) Reply {
	return k.call(self, tp, veneerFn2, &CallArgs{fn2: fn, a1: a1, a2: a2})
}

func (k *Kernel) Call3(self, tp *Thread, fn DelegateFunc3, a1, a2, a3 interface{}) Reply {
	return k.call(self, tp, veneerFn3, &CallArgs{fn3: fn, a1: a1, a2: a2, a3: a3})
}

func (k *Kernel) Call4(self, tp *Thread, fn DelegateFunc4, a1, a2, a3, a4 interface{}) Reply {
	return k.call(self, tp, veneerFn4, &CallArgs{fn4: fn, a1: a1, a2: a2, a3: a3, a4: a4})
}

// Dispatch is the server side with no timeout: wait for a call message,
// invoke its veneer in this thread's context, and release the caller
// with the result.
func (k *Kernel) Dispatch(self *Thread) Reply {
	msg := k.Wait(self)
	cm := msg.(*callMessage)
	ret := cm.veneer(cm.args)
	if err := k.Release(self, ret); err != nil {
		PANIC("delegate: release after dispatch: %v\n", err)
	}
	return ret
}

// DispatchTimeout is Dispatch with a bound on how long to wait for the
// next call message: if none arrives within timeout, it returns
// ErrNoCallMessage without invoking any veneer.
func (k *Kernel) DispatchTimeout(self *Thread, timeout Interval) (Reply, error) {
	msg, reply := k.WaitTimeout(self, timeout)
	if reply == ReplyTimeout {
		return ReplyTimeout, ErrNoCallMessage
	}
	cm := msg.(*callMessage)
	ret := cm.veneer(cm.args)
	if err := k.Release(self, ret); err != nil {
		return ret, err
	}
	return ret, nil
}
