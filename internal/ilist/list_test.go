package ilist

import (
	"testing"

	_ "github.com/satcat5/corenet/internal/testutil/testlog"
)

type entry struct {
	Node
	id int
}

func TestPushLenContainsRemove(t *testing.T) {
	var l List
	a := &entry{id: 1}
	b := &entry{id: 2}

	l.PushBack(&a.Node)
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}
	if !l.Contains(&a.Node) {
		t.Fatalf("expected list to contain a")
	}

	l.PushBack(&b.Node)
	if l.Len() != 2 {
		t.Fatalf("len = %d, want 2", l.Len())
	}

	if !l.Remove(&a.Node) {
		t.Fatalf("remove a failed")
	}
	if l.Contains(&a.Node) {
		t.Fatalf("a should be gone")
	}
	if l.Len() != 1 {
		t.Fatalf("len after remove = %d, want 1", l.Len())
	}
}

func TestPushBackOrder(t *testing.T) {
	var l List
	e1 := &entry{id: 1}
	e2 := &entry{id: 2}
	e3 := &entry{id: 3}
	l.PushBack(&e1.Node)
	l.PushBack(&e2.Node)
	l.PushBack(&e3.Node)

	want := []*Node{&e1.Node, &e2.Node, &e3.Node}
	i := 0
	for n := l.Front(); n != nil; n = Next(n) {
		if n != want[i] {
			t.Fatalf("position %d: got different node than expected", i)
		}
		i++
	}
	if i != 3 {
		t.Fatalf("walked %d nodes, want 3", i)
	}
}

func TestRemoveOfPushedIsIdentity(t *testing.T) {
	var l List
	a := &entry{id: 1}
	l.PushBack(&a.Node)
	l.Remove(&a.Node)
	if l.Len() != 0 {
		t.Fatalf("expected empty list after remove(push(L,x))")
	}
}

func TestHasLoopFalseForWellFormedList(t *testing.T) {
	var l List
	a, b, c := &entry{id: 1}, &entry{id: 2}, &entry{id: 3}
	l.PushBack(&a.Node)
	l.PushBack(&b.Node)
	l.PushBack(&c.Node)
	if l.HasLoop() {
		t.Fatalf("well-formed list must not report a loop")
	}
}

func TestHasLoopDetectsCycle(t *testing.T) {
	var l List
	a, b := &entry{id: 1}, &entry{id: 2}
	l.PushBack(&a.Node)
	l.PushBack(&b.Node)
	b.next = &a.Node // manually introduce a cycle
	if !l.HasLoop() {
		t.Fatalf("expected cycle to be detected")
	}
}
