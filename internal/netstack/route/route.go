// Package route implements the IPv4 routing table: longest-prefix
// match over a bounded slice, acceptable O(N) for the embedded table
// sizes the core targets.
package route

import (
	"errors"
	"net"
	"sync"
)

// ErrDuplicateRoute is returned by Add when a destination with the same
// network and prefix length already exists; the spec requires duplicates to be
// rejected rather than silently preferring one by insertion order.
var ErrDuplicateRoute = errors.New("route: duplicate prefix")

// ErrTableFull is returned by Add once a bounded table holds max routes.
var ErrTableFull = errors.New("route: table full")

// Route is one routing table entry.
type Route struct {
	Dest    net.IPNet
	Gateway net.IP
	Iface   string
}

// Table is a routing table bounded to max entries (0: unbounded), matched by
// longest prefix with ties impossible (duplicates rejected on Add).
type Table struct {
	mu     sync.Mutex
	routes []Route
	max    int
}

// New builds an empty Table holding at most max routes; max 0 means no
// bound.
func New(max int) *Table {
	return &Table{max: max}
}

// Add inserts r. A route whose Dest has the same prefix length and
// network as an existing one is rejected; the table never relies on
// insertion order to break a tie.
func (t *Table) Add(r Route) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.max > 0 && len(t.routes) >= t.max {
		return ErrTableFull
	}
	for _, existing := range t.routes {
		if sameNet(existing.Dest, r.Dest) {
			return ErrDuplicateRoute
		}
	}
	t.routes = append(t.routes, r)
	return nil
}

func sameNet(a, b net.IPNet) bool {
	aOnes, aBits := a.Mask.Size()
	bOnes, bBits := b.Mask.Size()
	return aOnes == bOnes && aBits == bBits && a.IP.Equal(b.IP)
}

// Remove deletes the route for the exact dest network, if present.
func (t *Table) Remove(dest net.IPNet) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, r := range t.routes {
		if sameNet(r.Dest, dest) {
			t.routes = append(t.routes[:i], t.routes[i+1:]...)
			return true
		}
	}
	return false
}

// Lookup returns the longest-prefix route containing ip; the default
// route (prefix length 0) matches only when nothing more specific
// does.
func (t *Table) Lookup(ip net.IP) (Route, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	best := -1
	var bestRoute Route
	for _, r := range t.routes {
		if !r.Dest.Contains(ip) {
			continue
		}
		ones, _ := r.Dest.Mask.Size()
		if ones > best {
			best = ones
			bestRoute = r
		}
	}
	if best < 0 {
		return Route{}, false
	}
	return bestRoute, true
}

// Routes returns a snapshot of the current table contents.
func (t *Table) Routes() []Route {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}
