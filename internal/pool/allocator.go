// Package pool provides the fixed lease table that binds client hardware
// addresses to IPv4 addresses.
package pool

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// MaxEntries bounds the size of a pool.
const MaxEntries = 1024

var (
	// ErrExhausted is returned when every entry is bound to another client.
	ErrExhausted = errors.New("address pool exhausted")
	// ErrInvalidMAC is returned for a short or all-zero hardware address.
	ErrInvalidMAC = errors.New("invalid client hardware address")
)

// Entry is one address in the pool. An all-zero MAC means unassigned.
type Entry struct {
	IP  net.IP
	MAC net.HardwareAddr
}

// Assigned reports whether the entry is bound to a client.
func (e Entry) Assigned() bool {
	return !dhcpv4.IsZeroMAC(e.MAC)
}

// Pool is a fixed, ordered list of leases. Bindings are never released.
type Pool struct {
	Start net.IP
	End   net.IP

	mu        sync.Mutex
	entries   []Entry
	allocated int
}

// NewPool builds a pool covering start..end inclusive.
func NewPool(start, end net.IP) (*Pool, error) {
	s4, e4 := start.To4(), end.To4()
	if s4 == nil || e4 == nil {
		return nil, fmt.Errorf("pool range %s-%s: both ends must be IPv4", start, end)
	}
	startU := dhcpv4.IPToUint32(s4)
	endU := dhcpv4.IPToUint32(e4)
	if endU < startU {
		return nil, fmt.Errorf("pool range: end %s is before start %s", end, start)
	}
	size := dhcpv4.IPRangeSize(s4, e4)
	if size > MaxEntries {
		return nil, fmt.Errorf("pool range %s-%s: %d addresses exceeds maximum of %d", start, end, size, MaxEntries)
	}

	entries := make([]Entry, size)
	for i := range entries {
		entries[i] = Entry{
			IP:  dhcpv4.Uint32ToIP(startU + uint32(i)).To4(),
			MAC: make(net.HardwareAddr, dhcpv4.EthernetAddrLen),
		}
	}
	return &Pool{Start: s4, End: e4, entries: entries}, nil
}

// Allocate returns the address bound to mac, binding the first free entry
// when mac has none yet. Repeated calls for the same mac return the same
// address.
func (p *Pool) Allocate(mac net.HardwareAddr) (net.IP, error) {
	if len(mac) < dhcpv4.EthernetAddrLen || dhcpv4.IsZeroMAC(mac[:dhcpv4.EthernetAddrLen]) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMAC, mac.String())
	}
	mac = mac[:dhcpv4.EthernetAddrLen]

	p.mu.Lock()
	defer p.mu.Unlock()

	free := -1
	for i := range p.entries {
		e := &p.entries[i]
		if bytes.Equal(e.MAC, mac) {
			return cloneIP(e.IP), nil
		}
		if free < 0 && !e.Assigned() {
			free = i
		}
	}
	if free < 0 {
		return nil, fmt.Errorf("allocating for %s: %w", mac, ErrExhausted)
	}

	copy(p.entries[free].MAC, mac)
	p.allocated++
	return cloneIP(p.entries[free].IP), nil
}

// Lookup returns the address bound to mac without allocating.
func (p *Pool) Lookup(mac net.HardwareAddr) (net.IP, bool) {
	if len(mac) < dhcpv4.EthernetAddrLen {
		return nil, false
	}
	mac = mac[:dhcpv4.EthernetAddrLen]

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.Assigned() && bytes.Equal(e.MAC, mac) {
			return cloneIP(e.IP), true
		}
	}
	return nil, false
}

// Entries returns a snapshot of the pool in address order.
func (p *Pool) Entries() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Entry, len(p.entries))
	for i, e := range p.entries {
		out[i] = Entry{IP: cloneIP(e.IP), MAC: append(net.HardwareAddr(nil), e.MAC...)}
	}
	return out
}

// Contains checks if an IP is within this pool's range.
func (p *Pool) Contains(ip net.IP) bool {
	u := dhcpv4.IPToUint32(ip)
	return ip.To4() != nil && u >= dhcpv4.IPToUint32(p.Start) && u <= dhcpv4.IPToUint32(p.End)
}

// Size returns the total number of IPs in the pool.
func (p *Pool) Size() int {
	return len(p.entries)
}

// Allocated returns the number of bound entries.
func (p *Pool) Allocated() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Available returns the number of free entries.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries) - p.allocated
}

// Utilization returns the pool utilization as a percentage.
func (p *Pool) Utilization() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return 0
	}
	return float64(p.allocated) / float64(len(p.entries)) * 100
}

// String returns a human-readable summary.
func (p *Pool) String() string {
	return fmt.Sprintf("%s-%s (%d/%d allocated)", p.Start, p.End, p.Allocated(), p.Size())
}

func cloneIP(ip net.IP) net.IP {
	return append(net.IP(nil), ip...)
}
