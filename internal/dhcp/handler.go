package dhcp

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/events"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/hostname"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Handler runs the Discover/Offer and Request/Ack exchanges (RFC 2131 §3.1)
// and reports each one through logs, metrics and the event bus.
type Handler struct {
	responder *Responder
	bus       *events.Bus
	logger    *slog.Logger
	leaseTime time.Duration
	bootFile  string
	now       func() time.Time
}

// NewHandler creates a new DHCP message handler. bus may be nil.
func NewHandler(responder *Responder, bus *events.Bus, logger *slog.Logger) *Handler {
	return &Handler{
		responder: responder,
		bus:       bus,
		logger:    logger,
		leaseTime: responder.cfg.LeaseTime,
		bootFile:  responder.cfg.BootFile,
		now:       time.Now,
	}
}

// HandlePacket writes the reply to pkt into buf and returns its length. A
// zero length with a nil error means the packet is not answered.
func (h *Handler) HandlePacket(ctx context.Context, pkt *Packet, buf []byte) (int, error) {
	msgType := pkt.MessageType
	metrics.PacketsReceived.WithLabelValues(msgType.String()).Inc()

	mac := pkt.CHAddr.String()
	xid := dhcpv4.FormatXID(pkt.XID)

	h.logger.Debug("received DHCP packet",
		"msg_type", msgType.String(),
		"mac", mac,
		"xid", xid,
		"interface", pkt.ReceivingInterface)

	if !pkt.IsBootRequest() {
		metrics.PacketsIgnored.WithLabelValues("not_request").Inc()
		h.logger.Debug("ignoring packet that is not a BOOTREQUEST",
			"op", int(pkt.Op), "mac", mac, "xid", xid)
		return 0, nil
	}

	if pkt.PXE.Present() {
		metrics.PXEClients.WithLabelValues(pkt.PXE.Arch.String()).Inc()
		h.logger.Debug("PXE client",
			"mac", mac,
			"xid", xid,
			"arch", pkt.PXE.Arch.String(),
			"version", pkt.PXE.Version.String(),
			"uuid", pkt.PXE.ClientUUID.String())
	}

	switch msgType {
	case dhcpv4.MessageTypeDiscover:
		h.logger.Info("DHCPDISCOVER",
			"mac", mac,
			"xid", xid,
			"hostname", pkt.HostName())
	case dhcpv4.MessageTypeRequest:
		h.logger.Info("DHCPREQUEST",
			"mac", mac,
			"xid", xid,
			"hostname", pkt.HostName(),
			"requested_ip", ipString(pkt.RequestedIP()))
	}

	reply, replyType, err := h.responder.Reply(pkt)
	switch {
	case errors.Is(err, pool.ErrExhausted):
		metrics.PoolExhausted.Inc()
		h.logger.Warn("pool exhausted",
			"msg_type", msgType.String(),
			"mac", mac,
			"pool", h.responder.pool.String())
		return 0, err
	case errors.Is(err, ErrUnhandled):
		h.logger.Info("message type not handled",
			"msg_type", msgType.String(),
			"mac", mac,
			"xid", xid)
		return 0, err
	case err != nil:
		return 0, err
	case reply == nil:
		metrics.PacketsIgnored.WithLabelValues("unhandled_type").Inc()
		h.logger.Debug("no reply for message type",
			"msg_type", msgType.String(),
			"mac", mac,
			"xid", xid)
		return 0, nil
	}

	n, err := reply.Encode(buf)
	if err != nil {
		return 0, err
	}

	p := h.responder.pool
	metrics.ObservePool(p.Size(), p.Allocated())

	evtType := events.EventLeaseOffer
	op := "offer"
	if replyType == dhcpv4.MessageTypeAck {
		evtType = events.EventLeaseAck
		op = "ack"
	}
	metrics.LeaseOperations.WithLabelValues(op).Inc()
	h.publish(evtType, pkt, reply.YIAddr)

	h.logger.Info(replyType.String(),
		"mac", mac,
		"xid", xid,
		"ip", reply.YIAddr.String(),
		"boot_file", h.bootFile)

	return n, nil
}

// publish copies everything the event needs out of pkt, whose buffers are
// reused once HandlePacket returns.
func (h *Handler) publish(evtType events.EventType, pkt *Packet, ip net.IP) {
	if h.bus == nil {
		return
	}

	now := h.now()
	ld := &events.LeaseData{
		IP:       append(net.IP(nil), ip.To4()...),
		MAC:      append(net.HardwareAddr(nil), pkt.CHAddr...),
		XID:      pkt.XID,
		Hostname: hostname.Sanitise(pkt.HostName()),
		BootFile: h.bootFile,
		Start:    now.Unix(),
		Expiry:   now.Add(h.leaseTime).Unix(),
	}
	if pkt.PXE.Present() {
		ld.Arch = pkt.PXE.Arch.String()
		ld.UUID = pkt.PXE.ClientUUID.String()
	}

	h.bus.Publish(events.Event{
		Type:      evtType,
		Timestamp: now,
		Lease:     ld,
	})
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
