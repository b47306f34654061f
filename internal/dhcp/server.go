package dhcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/metrics"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Server is the DHCPv4 UDP server. It reads, handles and answers one
// datagram at a time on a single goroutine.
type Server struct {
	conn      *ipv4.PacketConn
	raw       net.PacketConn
	handler   *Handler
	limiter   *RateLimiter
	logger    *slog.Logger
	addr      string
	iface     string
	replyAddr *net.UDPAddr
	ifNames   map[int]string
	wg        sync.WaitGroup
	done      chan struct{}
	stopOnce  sync.Once
}

// ServerOption configures optional Server behaviour.
type ServerOption func(*Server)

// WithRateLimiter drops requests the limiter rejects.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// WithReplyAddr overrides the reply destination, which is otherwise the
// limited broadcast address on the client port.
func WithReplyAddr(addr *net.UDPAddr) ServerOption {
	return func(s *Server) { s.replyAddr = addr }
}

// NewServer creates a new DHCP server.
func NewServer(handler *Handler, iface, addr string, logger *slog.Logger, opts ...ServerOption) *Server {
	if addr == "" {
		addr = fmt.Sprintf(":%d", dhcpv4.ServerPort)
	}
	s := &Server{
		handler: handler,
		logger:  logger,
		addr:    addr,
		iface:   iface,
		replyAddr: &net.UDPAddr{
			IP:   net.IPv4bcast,
			Port: dhcpv4.ClientPort,
		},
		ifNames: make(map[int]string),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start binds the UDP socket and begins serving in the background.
func (s *Server) Start(ctx context.Context) error {
	raw, err := listenUDP(ctx, s.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.addr, err)
	}
	s.raw = raw
	s.conn = ipv4.NewPacketConn(raw)
	if err := s.conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		// Not every platform reports the receiving interface.
		s.logger.Debug("interface control messages unavailable", "error", err)
	}

	s.logger.Info("DHCP server started",
		"address", raw.LocalAddr().String(),
		"interface", s.iface,
		"reply_to", s.replyAddr.String())

	s.wg.Add(1)
	go s.serve(ctx)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.done:
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.raw == nil {
		return nil
	}
	return s.raw.LocalAddr()
}

// serve is the main packet processing loop. Both buffers are reused for
// every datagram, so a packet is fully handled before the next read.
func (s *Server) serve(ctx context.Context) {
	defer s.wg.Done()

	in := make([]byte, dhcpv4.MaxPacketSize)
	out := make([]byte, dhcpv4.MaxPacketSize)

	for {
		n, cm, src, err := s.conn.ReadFrom(in)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			metrics.PacketErrors.WithLabelValues("read").Inc()
			s.logger.Error("reading UDP packet", "error", err)
			continue
		}

		s.processPacket(ctx, in[:n], out, cm, src)
	}
}

// processPacket handles a single DHCP datagram.
func (s *Server) processPacket(ctx context.Context, data, out []byte, cm *ipv4.ControlMessage, src net.Addr) {
	start := time.Now()

	pkt, err := DecodePacket(data)
	if err != nil {
		metrics.PacketErrors.WithLabelValues("decode").Inc()
		s.logger.Warn("dropping malformed packet",
			"error", err,
			"src", addrString(src),
			"size", len(data))
		return
	}
	if pkt == nil {
		metrics.PacketsIgnored.WithLabelValues("not_dhcp").Inc()
		s.logger.Debug("ignoring non-DHCP datagram",
			"src", addrString(src),
			"size", len(data))
		return
	}

	pkt.ReceivingInterface = s.interfaceName(cm)

	if ok, scope := s.limiter.Allow(pkt.CHAddr); !ok {
		metrics.RateLimited.WithLabelValues(scope).Inc()
		s.logger.Debug("rate limited",
			"scope", scope,
			"mac", pkt.CHAddr.String(),
			"xid", dhcpv4.FormatXID(pkt.XID))
		return
	}

	msgType := pkt.MessageType.String()
	n, err := s.handler.HandlePacket(ctx, pkt, out)
	metrics.PacketProcessingDuration.WithLabelValues(msgType).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, ErrUnhandled) {
			return
		}
		metrics.PacketErrors.WithLabelValues("handler").Inc()
		s.logger.Error("handling DHCP packet",
			"error", err,
			"mac", pkt.CHAddr.String(),
			"msg_type", msgType)
		return
	}
	if n == 0 {
		return // No response needed
	}

	var wcm *ipv4.ControlMessage
	if cm != nil && cm.IfIndex != 0 {
		wcm = &ipv4.ControlMessage{IfIndex: cm.IfIndex}
	}
	if _, err := s.conn.WriteTo(out[:n], wcm, s.replyAddr); err != nil {
		metrics.PacketErrors.WithLabelValues("send").Inc()
		s.logger.Error("sending reply",
			"error", err,
			"dst", s.replyAddr.String(),
			"mac", pkt.CHAddr.String())
		return
	}
	metrics.PacketsSent.WithLabelValues(replyType(out[:n]).String()).Inc()
}

// interfaceName resolves the receiving interface from a control message,
// falling back to the configured interface.
func (s *Server) interfaceName(cm *ipv4.ControlMessage) string {
	if cm == nil || cm.IfIndex == 0 {
		return s.iface
	}
	if name, ok := s.ifNames[cm.IfIndex]; ok {
		return name
	}
	name := s.iface
	if ifi, err := net.InterfaceByIndex(cm.IfIndex); err == nil {
		name = ifi.Name
	}
	s.ifNames[cm.IfIndex] = name
	return name
}

// replyType reads option 53 from an encoded reply. Replies built by the
// responder always carry it first.
func replyType(reply []byte) dhcpv4.MessageType {
	i := dhcpv4.HeaderSize
	if len(reply) >= i+3 && reply[i] == byte(dhcpv4.OptionDHCPMessageType) && reply[i+1] == 1 {
		return dhcpv4.MessageType(reply[i+2])
	}
	return 0
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		if s.raw != nil {
			s.raw.Close()
		}
		s.wg.Wait()
		s.logger.Info("DHCP server stopped")
	})
}

// Handler returns the packet handler.
func (s *Server) Handler() *Handler {
	return s.handler
}
