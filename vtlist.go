// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

// vtNode is the intrusive delta-list link embedded in every Timer. A
// node is "armed" iff it is linked into a list (next != nil); disarming
// it sets next back to nil.
type vtNode struct {
	next  *vtNode
	prev  *vtNode
	delta Interval // delta from the predecessor in the list

	// timer is the back-pointer to the owning Timer, set by the engine
	// when a Timer is armed. It lets the tick handler (which only ever
	// walks raw *vtNode links) recover the callback/arg/reload fields
	// of whichever timer happens to be at the head of the list.
	timer *Timer
}

func (n *vtNode) armed() bool {
	return n.next != nil
}

// vtList is a doubly-linked circular delta list with a sentinel header.
// The header always carries delta == width.MaxInterval(), which lets
// forward scans (enqueueLocked) terminate on an ordinary comparison
// without a separate empty-list special case.
type vtList struct {
	head vtNode
}

func (l *vtList) init(width Width) {
	l.head.next = &l.head
	l.head.prev = &l.head
	l.head.delta = width.MaxInterval()
}

func (l *vtList) isEmpty() bool {
	return l.head.next == &l.head
}

// insertBefore links node immediately before pivot, giving it the
// supplied delta. node must be detached.
func (l *vtList) insertBefore(pivot, node *vtNode, delta Interval) {
	if debugAssertOn() && node.armed() {
		PANIC("vtlist: insertBefore called on an armed node %p\n", node)
	}
	node.delta = delta
	node.prev = pivot.prev
	node.next = pivot
	pivot.prev.next = node
	pivot.prev = node
}

// dequeue unlinks node from whichever list it is on and marks it
// detached. It does not touch the delta bookkeeping of neighbours:
// callers that need the deleted node's delta absorbed into its successor
// do that explicitly before calling dequeue.
func (l *vtList) dequeue(node *vtNode) {
	if debugAssertOn() && !node.armed() {
		PANIC("vtlist: dequeue called on a detached node %p\n", node)
	}
	node.prev.next = node.next
	node.next.prev = node.prev
	node.next = nil
	node.prev = nil
}

// removeFirst unlinks and returns the first element. Precondition:
// the list is non-empty.
func (l *vtList) removeFirst() *vtNode {
	if debugAssertOn() && l.isEmpty() {
		PANIC("vtlist: removeFirst called on an empty list\n")
	}
	first := l.head.next
	l.dequeue(first)
	return first
}

// first returns the head's successor (the earliest-deadline armed node),
// or nil if the list is empty. Its delta is always measured from the
// list header (lasttime), never from another timer.
func (l *vtList) first() *vtNode {
	if l.isEmpty() {
		return nil
	}
	return l.head.next
}
