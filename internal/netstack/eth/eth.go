// Package eth is the link-layer Dispatch: it parses destination MAC,
// optional 802.1Q tag, and EtherType off a raw Readable, filters
// frames not addressed to this station, and fans the rest out by
// EtherType to registered Protocol handlers.
package eth

import (
	"fmt"
	"sync"

	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/stream"
)

// Addr is a 6-byte MAC address.
type Addr [6]byte

func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Broadcast is the all-ones link-layer broadcast address.
var Broadcast = Addr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

const vlanTPID uint16 = 0x8100

// Type is the eth layer's demux key: EtherType, plus an optional VLAN
// tag so VLAN-aware and VLAN-naive handlers can coexist.
type Type struct {
	EtherType uint16
	VLAN      uint16
	HasVLAN   bool
}

// TxOpener returns the raw link-layer Writeable for one outgoing
// frame, e.g. a framing codec over a serial port.
type TxOpener func() (stream.Writeable, bool)

// Dispatch is the Ethernet layer: local/broadcast/multicast address
// filtering plus EtherType demux.
type Dispatch struct {
	*dispatch.Dispatch[Type]

	mu        sync.Mutex
	local     Addr
	multicast map[Addr]bool
	tx        TxOpener
}

// New builds an eth.Dispatch for station local, sending outbound
// frames through tx.
func New(local Addr, tx TxOpener) *Dispatch {
	return &Dispatch{
		Dispatch:  dispatch.New[Type](),
		local:     local,
		multicast: make(map[Addr]bool),
		tx:        tx,
	}
}

// Local returns this station's MAC.
func (d *Dispatch) Local() Addr { return d.local }

// AddMulticast registers an additional accepted destination address.
func (d *Dispatch) AddMulticast(a Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.multicast[a] = true
}

// RemoveMulticast undoes AddMulticast.
func (d *Dispatch) RemoveMulticast(a Addr) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.multicast, a)
}

func (d *Dispatch) accepts(dst Addr) bool {
	if dst == d.local || dst == Broadcast {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.multicast[dst]
}

// RxFrame reads one Ethernet frame off r: 6 DA, 6 SA, optional VLAN
// tag, 2 EtherType, then dispatches the remaining payload by Type.
// Frames not addressed to this station (or broadcast/registered
// multicast) are dropped without a counter bump, since they are
// expected link noise, not a protocol error. Returns whether a
// handler matched.
func (d *Dispatch) RxFrame(r stream.Readable) bool {
	var dstb, srcb [6]byte
	if !r.ReadBytes(6, dstb[:]) || !r.ReadBytes(6, srcb[:]) {
		r.Abort()
		return false
	}
	dst, src := Addr(dstb), Addr(srcb)
	if !d.accepts(dst) {
		r.Abort()
		return false
	}

	et, ok := r.ReadU16BE()
	if !ok {
		r.Abort()
		return false
	}
	var vlan uint16
	hasVLAN := false
	if et == vlanTPID {
		tci, ok := r.ReadU16BE()
		if !ok {
			r.Abort()
			return false
		}
		vlan = tci & 0x0FFF
		hasVLAN = true
		if et, ok = r.ReadU16BE(); !ok {
			r.Abort()
			return false
		}
	}

	typ := Type{EtherType: et, VLAN: vlan, HasVLAN: hasVLAN}
	payload := stream.NewLimitedRead(r, r.Available())
	openReply := func() (stream.Writeable, bool) {
		return d.openFrom(src, et, vlan, hasVLAN)
	}
	matched := d.Dispatch.Dispatch(typ, payload, openReply)
	payload.Finalize()
	r.Finalize()
	return matched
}

func (d *Dispatch) openFrom(dst Addr, ethType, vlan uint16, hasVLAN bool) (stream.Writeable, bool) {
	return d.open(dst, ethType, vlan, hasVLAN)
}

func (d *Dispatch) open(dst Addr, ethType, vlan uint16, hasVLAN bool) (stream.Writeable, bool) {
	w, ok := d.tx()
	if !ok {
		return nil, false
	}
	if !w.PutBytes(dst[:]) || !w.PutBytes(d.local[:]) {
		w.Abort()
		return nil, false
	}
	if hasVLAN {
		if !w.PutU16BE(vlanTPID) || !w.PutU16BE(vlan&0x0FFF) {
			w.Abort()
			return nil, false
		}
	}
	if !w.PutU16BE(ethType) {
		w.Abort()
		return nil, false
	}
	return w, true
}

// Address opens a Writeable pre-filled with an Ethernet header
// addressed to one peer. Created by the TX side of a protocol; safe
// to reuse for multiple packets.
type Address struct {
	d       *Dispatch
	dst     Addr
	ethType uint16
	vlan    uint16
	hasVLAN bool
}

// NewAddress builds an Address for dst carrying ethType frames.
func (d *Dispatch) NewAddress(dst Addr, ethType uint16) *Address {
	return &Address{d: d, dst: dst, ethType: ethType}
}

// NewVLANAddress builds an Address tagged with a VLAN ID.
func (d *Dispatch) NewVLANAddress(dst Addr, ethType, vlan uint16) *Address {
	return &Address{d: d, dst: dst, ethType: ethType, vlan: vlan, hasVLAN: true}
}

// Open returns a Writeable with the Ethernet header already written;
// the caller writes payload and calls Finalize.
func (a *Address) Open() (stream.Writeable, bool) {
	return a.d.open(a.dst, a.ethType, a.vlan, a.hasVLAN)
}

// Dst returns the destination MAC this Address targets.
func (a *Address) Dst() Addr { return a.dst }
