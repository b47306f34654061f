package pool

import (
	"errors"
	"net"
	"sync"
	"testing"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(net.IPv4(192, 168, 1, 101), net.IPv4(192, 168, 1, 104))
	if err != nil {
		t.Fatalf("NewPool error: %v", err)
	}
	return p
}

func testMAC(last byte) net.HardwareAddr {
	return net.HardwareAddr{0xaa, 0xbb, 0xcc, 0xdd, 0xee, last}
}

func TestNewPool(t *testing.T) {
	p := newTestPool(t)
	if p.Size() != 4 {
		t.Errorf("Size() = %d, want 4", p.Size())
	}
	if p.Allocated() != 0 {
		t.Errorf("Allocated() = %d, want 0", p.Allocated())
	}
	if p.Available() != 4 {
		t.Errorf("Available() = %d, want 4", p.Available())
	}
	for i, e := range p.Entries() {
		if e.Assigned() {
			t.Errorf("entry %d assigned on a new pool", i)
		}
	}
}

func TestNewPoolInvalidRange(t *testing.T) {
	tests := []struct {
		name       string
		start, end net.IP
	}{
		{"end before start", net.IPv4(192, 168, 1, 200), net.IPv4(192, 168, 1, 100)},
		{"ipv6", net.ParseIP("2001:db8::1"), net.ParseIP("2001:db8::9")},
		{"too large", net.IPv4(10, 0, 0, 0), net.IPv4(10, 0, 4, 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPool(tt.start, tt.end); err == nil {
				t.Error("expected error")
			}
		})
	}

	// exactly MaxEntries is allowed
	if _, err := NewPool(net.IPv4(10, 0, 0, 0), net.IPv4(10, 0, 3, 255)); err != nil {
		t.Errorf("NewPool with %d entries: %v", MaxEntries, err)
	}
}

func TestPoolAllocateFirstFit(t *testing.T) {
	p := newTestPool(t)

	ip, err := p.Allocate(testMAC(1))
	if err != nil {
		t.Fatalf("Allocate error: %v", err)
	}
	if !ip.Equal(net.IPv4(192, 168, 1, 101)) {
		t.Errorf("first allocation = %s, want 192.168.1.101", ip)
	}

	ip2, err := p.Allocate(testMAC(2))
	if err != nil {
		t.Fatalf("Allocate error: %v", err)
	}
	if !ip2.Equal(net.IPv4(192, 168, 1, 102)) {
		t.Errorf("second allocation = %s, want 192.168.1.102", ip2)
	}
	if p.Allocated() != 2 {
		t.Errorf("Allocated() = %d, want 2", p.Allocated())
	}
}

func TestPoolAllocateSticky(t *testing.T) {
	p := newTestPool(t)

	first, _ := p.Allocate(testMAC(1))
	p.Allocate(testMAC(2))
	again, err := p.Allocate(testMAC(1))
	if err != nil {
		t.Fatalf("Allocate error: %v", err)
	}
	if !again.Equal(first) {
		t.Errorf("repeat allocation = %s, want %s", again, first)
	}
	if p.Allocated() != 2 {
		t.Errorf("Allocated() = %d, want 2 (sticky lookup must not bind a new entry)", p.Allocated())
	}
}

func TestPoolAllocateLongMAC(t *testing.T) {
	p := newTestPool(t)

	long := append(testMAC(7), 0x01, 0x02)
	ip, err := p.Allocate(long)
	if err != nil {
		t.Fatalf("Allocate error: %v", err)
	}
	again, _ := p.Allocate(testMAC(7))
	if !again.Equal(ip) {
		t.Errorf("6-byte prefix lookup = %s, want %s", again, ip)
	}
}

func TestPoolExhausted(t *testing.T) {
	p := newTestPool(t)

	for i := byte(1); i <= 4; i++ {
		if _, err := p.Allocate(testMAC(i)); err != nil {
			t.Fatalf("Allocate(%d) error: %v", i, err)
		}
	}
	if p.Available() != 0 {
		t.Errorf("Available() = %d, want 0", p.Available())
	}

	_, err := p.Allocate(testMAC(5))
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("Allocate on full pool err = %v, want ErrExhausted", err)
	}

	// existing bindings still resolve
	ip, err := p.Allocate(testMAC(3))
	if err != nil || !ip.Equal(net.IPv4(192, 168, 1, 103)) {
		t.Errorf("Allocate(existing) = %s, %v", ip, err)
	}
}

func TestPoolInvalidMAC(t *testing.T) {
	p := newTestPool(t)

	for _, mac := range []net.HardwareAddr{
		nil,
		{0x01, 0x02, 0x03},
		{0, 0, 0, 0, 0, 0},
	} {
		if _, err := p.Allocate(mac); !errors.Is(err, ErrInvalidMAC) {
			t.Errorf("Allocate(%v) err = %v, want ErrInvalidMAC", mac, err)
		}
	}
	if p.Allocated() != 0 {
		t.Errorf("Allocated() = %d, want 0", p.Allocated())
	}
}

func TestPoolReturnedIPIsCopy(t *testing.T) {
	p := newTestPool(t)

	ip, _ := p.Allocate(testMAC(1))
	ip[3] = 250
	again, _ := p.Allocate(testMAC(1))
	if !again.Equal(net.IPv4(192, 168, 1, 101)) {
		t.Errorf("pool entry mutated through returned IP: %s", again)
	}
}

func TestPoolLookup(t *testing.T) {
	p := newTestPool(t)

	if _, ok := p.Lookup(testMAC(1)); ok {
		t.Error("Lookup should miss before allocation")
	}
	want, _ := p.Allocate(testMAC(1))
	got, ok := p.Lookup(testMAC(1))
	if !ok || !got.Equal(want) {
		t.Errorf("Lookup = %s, %v; want %s, true", got, ok, want)
	}
	if _, ok := p.Lookup(net.HardwareAddr{0, 0, 0, 0, 0, 0}); ok {
		t.Error("Lookup of zero MAC should miss")
	}
}

func TestPoolConcurrentAllocate(t *testing.T) {
	p, err := NewPool(net.IPv4(10, 0, 0, 1), net.IPv4(10, 0, 0, 64))
	if err != nil {
		t.Fatalf("NewPool error: %v", err)
	}

	var wg sync.WaitGroup
	results := make([]net.IP, 64)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip, err := p.Allocate(net.HardwareAddr{0x02, 0, 0, 0, 0, byte(i + 1)})
			if err != nil {
				t.Errorf("Allocate(%d) error: %v", i, err)
				return
			}
			results[i] = ip
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, ip := range results {
		if seen[ip.String()] {
			t.Fatalf("duplicate allocation: %s", ip)
		}
		seen[ip.String()] = true
	}
	if p.Available() != 0 {
		t.Errorf("Available() = %d, want 0", p.Available())
	}
}

func TestPoolContains(t *testing.T) {
	p := newTestPool(t)

	tests := []struct {
		ip   net.IP
		want bool
	}{
		{net.IPv4(192, 168, 1, 101), true},
		{net.IPv4(192, 168, 1, 104), true},
		{net.IPv4(192, 168, 1, 100), false},
		{net.IPv4(192, 168, 1, 105), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := p.Contains(tt.ip); got != tt.want {
			t.Errorf("Contains(%v) = %v, want %v", tt.ip, got, tt.want)
		}
	}
}

func TestPoolUtilization(t *testing.T) {
	p := newTestPool(t)

	if p.Utilization() != 0 {
		t.Errorf("Utilization() = %f, want 0", p.Utilization())
	}
	p.Allocate(testMAC(1))
	if got := p.Utilization(); got != 25 {
		t.Errorf("Utilization() after 1 allocation = %f, want 25", got)
	}
}

func TestPoolString(t *testing.T) {
	p := newTestPool(t)
	p.Allocate(testMAC(1))
	want := "192.168.1.101-192.168.1.104 (1/4 allocated)"
	if s := p.String(); s != want {
		t.Errorf("String() = %q, want %q", s, want)
	}
}
