// Package dispatch is the generic type-keyed demux framework shared
// by every network layer: Ethernet dispatching on EtherType, IPv4 on
// protocol number, UDP on port. One Dispatch holds an ordered set of
// Protocol handlers; frame arrival walks the set for the first match.
package dispatch

import (
	"sync"

	"github.com/satcat5/corenet/internal/stream"
)

// Handler is one registered protocol within a Dispatch[T]. Type
// identifies which frames it wants; FrameRcvd is invoked with the
// frame's payload view and a Replier that can TX a response to the
// sender using the correct lower-layer headers.
type Handler[T comparable] interface {
	Type() T
	FrameRcvd(r *stream.LimitedRead, reply Replier)
}

// Replier opens a reply Writeable addressed back at whoever sent the
// frame currently being dispatched. Only valid for the duration of the
// FrameRcvd call it was handed to.
type Replier interface {
	OpenReply() (stream.Writeable, bool)
}

// Dispatch demuxes frames by Type to a registered Handler set.
// Registration order is newest-first: a handler added later sees
// frames before one added earlier, with ties (there are none, since
// registration is sequential) broken by registration order.
type Dispatch[T comparable] struct {
	mu      sync.Mutex
	proto   []Handler[T]
	dropped uint64
	matched uint64

	dispatching bool
	replyFn     func() (stream.Writeable, bool)
	deferredUn  []Handler[T]
}

// New creates an empty Dispatch.
func New[T comparable]() *Dispatch[T] {
	return &Dispatch[T]{}
}

// Register adds h to the front of the handler set.
func (d *Dispatch[T]) Register(h Handler[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.proto = append([]Handler[T]{h}, d.proto...)
}

// Unregister removes h. If called from inside h's own FrameRcvd (or
// any handler's, mid-dispatch), the removal is deferred until the
// current Dispatch call returns, since a handler must not mutate the
// set it is itself being walked from.
func (d *Dispatch[T]) Unregister(h Handler[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dispatching {
		d.deferredUn = append(d.deferredUn, h)
		return
	}
	d.removeLocked(h)
}

func (d *Dispatch[T]) removeLocked(h Handler[T]) {
	for i, p := range d.proto {
		if p == h {
			d.proto = append(d.proto[:i], d.proto[i+1:]...)
			return
		}
	}
}

// Dispatch finds the first handler whose Type matches typ and invokes
// it with r and a Replier backed by openReply. openReply is latched
// for the call's duration so the handler may call OpenReply to send a
// response. Unmatched frames are dropped and counted, not treated as
// an error. Reports whether a handler matched.
func (d *Dispatch[T]) Dispatch(typ T, r *stream.LimitedRead, openReply func() (stream.Writeable, bool)) bool {
	d.mu.Lock()
	h := d.findLocked(typ)
	if h == nil {
		d.dropped++
		d.mu.Unlock()
		return false
	}
	d.matched++
	d.dispatching = true
	d.replyFn = openReply
	d.mu.Unlock()

	h.FrameRcvd(r, d)

	d.mu.Lock()
	d.dispatching = false
	d.replyFn = nil
	deferred := d.deferredUn
	d.deferredUn = nil
	d.mu.Unlock()

	for _, dh := range deferred {
		d.Unregister(dh)
	}
	return true
}

// Lookup reports whether a handler is registered for typ, without
// touching the Matched/Dropped counters. Intended for a caller that
// must choose between several candidate keys (e.g. a connected socket
// narrowing vs. an unconnected fallback) before committing to the one
// actual Dispatch call that should be counted.
func (d *Dispatch[T]) Lookup(typ T) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.findLocked(typ) != nil
}

func (d *Dispatch[T]) findLocked(typ T) Handler[T] {
	for _, p := range d.proto {
		if p.Type() == typ {
			return p
		}
	}
	return nil
}

// OpenReply implements Replier for the Dispatch itself, so it can be
// passed straight to a Handler's FrameRcvd.
func (d *Dispatch[T]) OpenReply() (stream.Writeable, bool) {
	d.mu.Lock()
	fn := d.replyFn
	d.mu.Unlock()
	if fn == nil {
		return nil, false
	}
	return fn()
}

// Dropped returns the number of frames dropped for lack of a matching
// handler.
func (d *Dispatch[T]) Dropped() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Matched returns the number of frames successfully routed to a
// handler.
func (d *Dispatch[T]) Matched() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.matched
}
