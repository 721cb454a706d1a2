// Package arp implements the Address Resolution Protocol as an eth
// Protocol handler: request/reply parsing, a bounded LRU cache, and
// probe retry driven off the poll scheduler.
package arp

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/satcat5/corenet/internal/netstack/dispatch"
	"github.com/satcat5/corenet/internal/netstack/eth"
	"github.com/satcat5/corenet/internal/stream"
)

// EtherType is the ARP EtherType value.
const EtherType uint16 = 0x0806

const (
	opRequest uint16 = 1
	opReply   uint16 = 2

	hwTypeEthernet uint16 = 1
	protoTypeIPv4  uint16 = 0x0800
)

// DefaultProbeTimeout and DefaultMaxProbes implement the spec's "1s
// default, retry 3 times before declaring unreachable" policy.
const (
	DefaultProbeTimeout = 1 * time.Second
	DefaultMaxProbes    = 3
)

// State is the lifecycle of one cache entry.
type State int

const (
	StateProbing State = iota
	StateResolved
	StateStale
)

// IPv4 is a 4-byte address used as the cache key (avoids pulling in
// net.IP's variable-length representation for the hot lookup path).
type IPv4 [4]byte

func (a IPv4) u32() uint32 { return binary.BigEndian.Uint32(a[:]) }

type entry struct {
	ip        IPv4
	mac       eth.Addr
	state     State
	updatedAt time.Time
	probes    int
	pending   bool
}

// Cache is a bounded, LRU-evicted IP->MAC table.
type Cache struct {
	mu      sync.Mutex
	entries map[uint32]*entry
	order   []uint32 // front = most recently touched
	max     int
}

// NewCache builds a Cache holding at most max entries.
func NewCache(max int) *Cache {
	return &Cache{entries: make(map[uint32]*entry), max: max}
}

func (c *Cache) touch(key uint32) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append([]uint32{key}, c.order...)
}

func (c *Cache) evictIfFull() {
	if c.max <= 0 || len(c.entries) < c.max {
		return
	}
	oldest := c.order[len(c.order)-1]
	c.order = c.order[:len(c.order)-1]
	delete(c.entries, oldest)
}

// Len reports the number of entries currently cached, resolved or
// probing.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Lookup returns the resolved MAC for ip, or ok=false if unresolved
// or still probing.
func (c *Cache) Lookup(ip IPv4) (eth.Addr, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, found := c.entries[ip.u32()]
	if !found || e.state != StateResolved {
		return eth.Addr{}, false
	}
	return e.mac, true
}

// Update records a resolved (ip, mac) pair, refreshing its LRU
// position. Used for both ARP replies and gratuitous ARP.
func (c *Cache) Update(ip IPv4, mac eth.Addr, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ip.u32()
	e, found := c.entries[key]
	if !found {
		c.evictIfFull()
		e = &entry{ip: ip}
		c.entries[key] = e
		c.order = append([]uint32{key}, c.order...)
	}
	e.mac = mac
	e.state = StateResolved
	e.updatedAt = now
	e.probes = 0
	c.touch(key)
}

// Invalidate marks ip's entry stale, forcing the next resolve to
// re-probe.
func (c *Cache) Invalidate(ip IPv4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[ip.u32()]; ok {
		e.state = StateStale
	}
}

func (c *Cache) beginProbe(ip IPv4, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := ip.u32()
	e, found := c.entries[key]
	if !found {
		c.evictIfFull()
		e = &entry{ip: ip}
		c.entries[key] = e
		c.order = append([]uint32{key}, c.order...)
	}
	e.state = StateProbing
	e.updatedAt = now
	e.probes = 0
	c.touch(key)
}

// Protocol is the ARP handler registered on an eth.Dispatch.
type Protocol struct {
	eth          *eth.Dispatch
	localIP      IPv4
	cache        *Cache
	probeTimeout time.Duration
	maxProbes    int
	now          func() time.Time

	mu      sync.Mutex
	pending map[uint32]struct{} // IPs with a pending resolve owed a probe
}

// New registers an ARP Protocol for localIP on e, backed by a cache of
// cacheSize entries.
func New(e *eth.Dispatch, localIP IPv4, cacheSize int) *Protocol {
	p := &Protocol{
		eth:          e,
		localIP:      localIP,
		cache:        NewCache(cacheSize),
		probeTimeout: DefaultProbeTimeout,
		maxProbes:    DefaultMaxProbes,
		now:          time.Now,
		pending:      make(map[uint32]struct{}),
	}
	e.Register(p)
	return p
}

func (p *Protocol) Type() eth.Type { return eth.Type{EtherType: EtherType} }

// Lookup returns the resolved MAC for ip without issuing a probe.
func (p *Protocol) Lookup(ip IPv4) (eth.Addr, bool) { return p.cache.Lookup(ip) }

// CacheLen reports the number of entries currently held in the ARP
// cache, for diagnostics surfaces.
func (p *Protocol) CacheLen() int { return p.cache.Len() }

// Resolve returns a cached MAC if present; otherwise it sends a
// broadcast ARP request and returns ok=false. Callers needing the
// frame that triggered resolution decide their own queue-or-fail-fast
// policy per §4.H.
func (p *Protocol) Resolve(ip IPv4) (eth.Addr, bool) {
	if mac, ok := p.cache.Lookup(ip); ok {
		return mac, true
	}
	p.cache.beginProbe(ip, p.now())
	p.sendRequest(ip)
	return eth.Addr{}, false
}

func (p *Protocol) sendRequest(target IPv4) {
	w, ok := p.eth.NewAddress(eth.Broadcast, EtherType).Open()
	if !ok {
		return
	}
	p.writePacket(w, opRequest, p.eth.Local(), p.localIP, eth.Addr{}, target)
}

func (p *Protocol) writePacket(w stream.Writeable, op uint16, senderMAC eth.Addr, senderIP IPv4, targetMAC eth.Addr, targetIP IPv4) {
	w.PutU16BE(hwTypeEthernet)
	w.PutU16BE(protoTypeIPv4)
	w.PutU8(6)
	w.PutU8(4)
	w.PutU16BE(op)
	w.PutBytes(senderMAC[:])
	w.PutBytes(senderIP[:])
	w.PutBytes(targetMAC[:])
	w.PutBytes(targetIP[:])
	w.Finalize()
}

// FrameRcvd parses one ARP packet: gratuitous and solicited replies
// update the cache; requests for our IP get a unicast reply.
func (p *Protocol) FrameRcvd(r *stream.LimitedRead, reply dispatch.Replier) {
	var hdr [8]byte
	if !r.ReadBytes(8, hdr[:]) {
		return
	}
	hwType := binary.BigEndian.Uint16(hdr[0:2])
	protoType := binary.BigEndian.Uint16(hdr[2:4])
	hwLen, protoLen := hdr[4], hdr[5]
	op := binary.BigEndian.Uint16(hdr[6:8])
	if hwType != hwTypeEthernet || protoType != protoTypeIPv4 || hwLen != 6 || protoLen != 4 {
		return
	}

	var senderMAC, targetMAC eth.Addr
	var senderIP, targetIP IPv4
	if !r.ReadBytes(6, senderMAC[:]) || !r.ReadBytes(4, senderIP[:]) ||
		!r.ReadBytes(6, targetMAC[:]) || !r.ReadBytes(4, targetIP[:]) {
		return
	}

	// Any ARP carrying a claim about senderIP updates the cache,
	// gratuitous or not, per §4.H.
	p.cache.Update(senderIP, senderMAC, p.now())

	switch op {
	case opRequest:
		if targetIP != p.localIP {
			return
		}
		w, ok := reply.OpenReply()
		if !ok {
			return
		}
		p.writePacket(w, opReply, p.eth.Local(), p.localIP, senderMAC, senderIP)
	case opReply:
		// cache already updated above.
	}
}

// Poll re-sends probes for entries still unresolved after
// probeTimeout, up to maxProbes retries, then leaves them stale.
// cmd/satcat5core registers it as a 250 ms Timer poll.Task.
func (p *Protocol) Poll() {
	now := p.now()
	p.cache.mu.Lock()
	var retry []IPv4
	for _, e := range p.cache.entries {
		if e.state != StateProbing {
			continue
		}
		if now.Sub(e.updatedAt) < p.probeTimeout {
			continue
		}
		if e.probes >= p.maxProbes {
			e.state = StateStale
			continue
		}
		e.probes++
		e.updatedAt = now
		retry = append(retry, e.ip)
	}
	p.cache.mu.Unlock()
	for _, ip := range retry {
		p.sendRequest(ip)
	}
}
