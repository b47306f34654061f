package dhcp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/events"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/logging"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

func newTestHandler(t *testing.T, bus *events.Bus) *Handler {
	t.Helper()
	h := NewHandler(newTestResponder(t, testReplyConfig()), bus, logging.Discard())
	h.now = func() time.Time { return time.Unix(1700000000, 0) }
	return h
}

func waitEvent(t *testing.T, ch chan events.Event) events.Event {
	t.Helper()
	select {
	case evt := <-ch:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return events.Event{}
}

func TestHandlePacketPublishesOffer(t *testing.T) {
	bus := events.NewBus(16, logging.Discard())
	go bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe(4)

	h := newTestHandler(t, bus)

	id := uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")
	opts := []byte{
		53, 1, 1,
		12, 4, 'n', 'o', 'd', 'e',
		93, 2, 0, 7,
		97, 17, 0,
	}
	opts = append(opts, id[:]...)
	data := buildRequest(dhcpv4.OpCodeBootRequest, testMAC, 0xCAFE, append(opts, 255)...)
	pkt, err := DecodePacket(data)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	offers := testutil.ToFloat64(metrics.LeaseOperations.WithLabelValues("offer"))
	pxe := testutil.ToFloat64(metrics.PXEClients.WithLabelValues(dhcpv4.ArchEFIBC.String()))

	buf := make([]byte, dhcpv4.MaxPacketSize)
	n, err := h.HandlePacket(context.Background(), pkt, buf)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if n != dhcpv4.MinPacketSize {
		t.Errorf("n = %d, want %d", n, dhcpv4.MinPacketSize)
	}
	if replyType(buf[:n]) != dhcpv4.MessageTypeOffer {
		t.Errorf("reply type = %s, want DHCPOFFER", replyType(buf[:n]))
	}

	// the receive buffer is reused by the server; the event must not see it
	for i := range data {
		data[i] = 0xEE
	}

	evt := waitEvent(t, sub)
	if evt.Type != events.EventLeaseOffer {
		t.Errorf("event type = %s, want %s", evt.Type, events.EventLeaseOffer)
	}
	ld := evt.Lease
	if ld == nil {
		t.Fatal("event has no lease data")
	}
	if ld.MAC.String() != testMAC.String() {
		t.Errorf("MAC = %s, want %s", ld.MAC, testMAC)
	}
	if !ld.IP.Equal(net.IPv4(192, 168, 1, 101)) {
		t.Errorf("IP = %v", ld.IP)
	}
	if ld.Hostname != "node" {
		t.Errorf("Hostname = %q, want node", ld.Hostname)
	}
	if ld.XID != 0xCAFE {
		t.Errorf("XID = %x", ld.XID)
	}
	if ld.Arch != dhcpv4.ArchEFIBC.String() || ld.UUID != id.String() {
		t.Errorf("Arch/UUID = %q/%q", ld.Arch, ld.UUID)
	}
	if ld.BootFile != "pxelinux.0" {
		t.Errorf("BootFile = %q", ld.BootFile)
	}
	if ld.Start != 1700000000 || ld.Expiry-ld.Start != 86400 {
		t.Errorf("Start/Expiry = %d/%d", ld.Start, ld.Expiry)
	}

	if got := testutil.ToFloat64(metrics.LeaseOperations.WithLabelValues("offer")) - offers; got != 1 {
		t.Errorf("offer operations delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.PXEClients.WithLabelValues(dhcpv4.ArchEFIBC.String())) - pxe; got != 1 {
		t.Errorf("PXE client delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.PoolAllocated); got != 1 {
		t.Errorf("pool allocated gauge = %v, want 1", got)
	}
}

func TestHandlePacketAck(t *testing.T) {
	bus := events.NewBus(16, logging.Discard())
	go bus.Start()
	defer bus.Stop()
	sub := bus.Subscribe(4)

	h := newTestHandler(t, bus)
	buf := make([]byte, dhcpv4.MaxPacketSize)

	n, err := h.HandlePacket(context.Background(), decodeRequest(t, testMAC, dhcpv4.MessageTypeRequest), buf)
	if err != nil {
		t.Fatalf("HandlePacket: %v", err)
	}
	if replyType(buf[:n]) != dhcpv4.MessageTypeAck {
		t.Errorf("reply type = %s, want DHCPACK", replyType(buf[:n]))
	}

	evt := waitEvent(t, sub)
	if evt.Type != events.EventLeaseAck {
		t.Errorf("event type = %s, want %s", evt.Type, events.EventLeaseAck)
	}
	if evt.Lease.Arch != "" || evt.Lease.UUID != "" {
		t.Errorf("non-PXE client got Arch/UUID %q/%q", evt.Lease.Arch, evt.Lease.UUID)
	}
}

func TestHandlePacketNoReply(t *testing.T) {
	h := newTestHandler(t, nil)
	buf := make([]byte, dhcpv4.MaxPacketSize)

	ignored := testutil.ToFloat64(metrics.PacketsIgnored.WithLabelValues("unhandled_type"))
	n, err := h.HandlePacket(context.Background(), decodeRequest(t, testMAC, dhcpv4.MessageTypeRelease), buf)
	if err != nil || n != 0 {
		t.Errorf("release: n = %d, err = %v", n, err)
	}
	if got := testutil.ToFloat64(metrics.PacketsIgnored.WithLabelValues("unhandled_type")) - ignored; got != 1 {
		t.Errorf("unhandled_type delta = %v, want 1", got)
	}

	pkt, _ := DecodePacket(buildRequest(dhcpv4.OpCodeBootReply, testMAC, 1, 53, 1, 1, 255))
	if n, err := h.HandlePacket(context.Background(), pkt, buf); err != nil || n != 0 {
		t.Errorf("bootreply: n = %d, err = %v", n, err)
	}

	if _, err := h.HandlePacket(context.Background(), decodeRequest(t, testMAC, dhcpv4.MessageTypeInform), buf); !errors.Is(err, ErrUnhandled) {
		t.Errorf("inform: err = %v, want ErrUnhandled", err)
	}
}

func TestHandlePacketExhausted(t *testing.T) {
	h := newTestHandler(t, nil)
	buf := make([]byte, dhcpv4.MaxPacketSize)

	for i := byte(1); i <= 2; i++ {
		mac := net.HardwareAddr{0, 0, 0, 0, 0, i}
		if _, err := h.HandlePacket(context.Background(), decodeRequest(t, mac, dhcpv4.MessageTypeDiscover), buf); err != nil {
			t.Fatalf("client %d: %v", i, err)
		}
	}

	before := testutil.ToFloat64(metrics.PoolExhausted)
	n, err := h.HandlePacket(context.Background(), decodeRequest(t, net.HardwareAddr{0, 0, 0, 0, 0, 9}, dhcpv4.MessageTypeDiscover), buf)
	if !errors.Is(err, pool.ErrExhausted) || n != 0 {
		t.Fatalf("n = %d, err = %v; want pool.ErrExhausted", n, err)
	}
	if got := testutil.ToFloat64(metrics.PoolExhausted) - before; got != 1 {
		t.Errorf("exhausted delta = %v, want 1", got)
	}
}
