// Package ilist implements an intrusive singly-linked list: the
// shared registration primitive used by the interrupt demux, the
// dispatch Protocol registries, and anywhere else something is
// registered without a heap allocation per entry.
package ilist

// Node is embedded (by value, as the first field) into whatever type
// wants to live on a List. A Node must not be on two lists that share
// the same next pointer at once. Value optionally holds a back
// reference to the owning struct, for callers that walk the list by
// Node and need to recover it; set once at construction, it mirrors
// container/list.Element.Value rather than a container_of cast.
type Node struct {
	next  *Node
	Value any
}

// List is an intrusive singly-linked list of Nodes. The zero value is
// an empty list. List does not own the memory behind its Nodes; the
// caller does.
type List struct {
	head *Node
}

// PushFront adds n to the front of the list in O(1).
func (l *List) PushFront(n *Node) {
	n.next = l.head
	l.head = n
}

// PushBack adds n to the back of the list. O(n): intrusive lists here
// keep no tail pointer, trading this for a simpler invariant (head is
// the only external reference needed).
func (l *List) PushBack(n *Node) {
	n.next = nil
	if l.head == nil {
		l.head = n
		return
	}
	cur := l.head
	for cur.next != nil {
		cur = cur.next
	}
	cur.next = n
}

// FindPtr returns the address of the *Node field that points at n, so
// the caller can remove n in O(1) once found (either &l.head or
// &someNode.next). The bool is false if n is not on the list.
func (l *List) FindPtr(n *Node) (**Node, bool) {
	pp := &l.head
	for *pp != nil {
		if *pp == n {
			return pp, true
		}
		pp = &(*pp).next
	}
	return nil, false
}

// Remove removes n from the list, if present. O(n) to locate it, O(1)
// to unlink once found.
func (l *List) Remove(n *Node) bool {
	pp, ok := l.FindPtr(n)
	if !ok {
		return false
	}
	*pp = n.next
	n.next = nil
	return true
}

// Contains reports whether n is on the list. O(n).
func (l *List) Contains(n *Node) bool {
	for cur := l.head; cur != nil; cur = cur.next {
		if cur == n {
			return true
		}
	}
	return false
}

// Len returns the number of nodes on the list. O(n).
func (l *List) Len() int {
	n := 0
	for cur := l.head; cur != nil; cur = cur.next {
		n++
	}
	return n
}

// Front returns the first node, or nil if the list is empty.
func (l *List) Front() *Node { return l.head }

// Next returns the node following n, or nil at the end of the list.
func Next(n *Node) *Node { return n.next }

// HasLoop detects a cycle using Floyd's tortoise-and-hare. A
// correctly-used intrusive list should never have one; this exists to
// assert that invariant in debug builds.
func (l *List) HasLoop() bool {
	slow, fast := l.head, l.head
	for fast != nil && fast.next != nil {
		slow = slow.next
		fast = fast.next.next
		if slow == fast {
			return true
		}
	}
	return false
}
