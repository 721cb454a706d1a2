// Package irq implements the shared-interrupt demux: one physical IRQ
// line fans out through ConfigBus::IRQPoll to a registered set of
// Interrupt handlers, each responsible for its own peripheral's
// status register.
package irq

import (
	"sync"

	"github.com/satcat5/corenet/internal/ilist"
)

// StatusReg is the peripheral's interrupt-status register: read to
// find out why it fired, written to acknowledge.
type StatusReg interface {
	// Read returns the current pending-interrupt bits.
	Read() uint32
	// Ack clears the bits that were just serviced.
	Ack(bits uint32)
}

// Handler reacts to a peripheral's pending interrupt bits. It runs on
// the poll thread, never inside an ISR; it must not block.
type Handler func(bits uint32)

// Interrupt is one entry in the shared-IRQ list: a peripheral's
// status register paired with the handler to invoke when it fires.
type Interrupt struct {
	ilist.Node
	status  StatusReg
	handler Handler
}

// NewInterrupt builds a registration for status, to be passed to
// Line.Register.
func NewInterrupt(status StatusReg, handler Handler) *Interrupt {
	i := &Interrupt{status: status, handler: handler}
	i.Node.Value = i
	return i
}

// Line is the shared physical interrupt line. Its mutex guards both
// list mutation and the IRQPoll walk, matching the boundary rule that
// ISRs may only set flags or push list entries, never run handler or
// allocator code themselves.
type Line struct {
	mu   sync.Mutex
	list ilist.List
}

// Register adds i to the set serviced by IRQPoll. It takes the Line's
// mutex itself, so the caller must not already hold it.
func (l *Line) Register(i *Interrupt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.list.PushBack(&i.Node)
}

// Unregister removes i. Deferred unregistration (from inside i's own
// handler) is not required here, since the walk snapshots the list
// before invoking any handler.
func (l *Line) Unregister(i *Interrupt) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.list.Remove(&i.Node)
}

// IRQPoll walks the registered Interrupts, reading and acking each
// one's status bits and invoking its handler if any bits were
// pending. Status bits that arrive after a peripheral's ack but
// before IRQPoll returns are caught by re-walking the list once more;
// the line is only considered re-armed once a full walk finds nothing
// pending.
func (l *Line) IRQPoll() {
	for {
		if !l.walkOnce() {
			return
		}
	}
}

func (l *Line) walkOnce() (servicedAny bool) {
	for _, i := range l.snapshot() {
		bits := i.status.Read()
		if bits == 0 {
			continue
		}
		i.status.Ack(bits)
		i.handler(bits)
		servicedAny = true
	}
	return servicedAny
}

func (l *Line) snapshot() []*Interrupt {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Interrupt, 0, l.list.Len())
	for n := l.list.Front(); n != nil; n = ilist.Next(n) {
		out = append(out, n.Value.(*Interrupt))
	}
	return out
}
