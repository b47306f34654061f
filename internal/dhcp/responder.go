package dhcp

import (
	"fmt"
	"net"
	"time"

	"github.com/pxe-dhcpd/pxe-dhcpd/internal/config"
	"github.com/pxe-dhcpd/pxe-dhcpd/internal/pool"
	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// ReplyConfig is the fixed network and boot information written into every
// Offer and Ack.
type ReplyConfig struct {
	ServerIP   net.IP     // option 54
	SubnetMask net.IPMask // option 1
	LeaseTime  time.Duration
	TFTPServer string // option 66, omitted when empty
	BootFile   string // option 67, omitted when empty
	NextServer net.IP // siaddr; ServerIP when nil
}

// ReplyConfigFrom derives a ReplyConfig from the loaded configuration.
func ReplyConfigFrom(cfg *config.Config) ReplyConfig {
	return ReplyConfig{
		ServerIP:   cfg.ServerIP(),
		SubnetMask: cfg.SubnetMask(),
		LeaseTime:  cfg.LeaseTime(),
		TFTPServer: cfg.Boot.TFTPServer,
		BootFile:   cfg.Boot.BootFile,
		NextServer: cfg.NextServer(),
	}
}

// leaseSeconds clamps the lease time to what option 51 can carry.
func (c ReplyConfig) leaseSeconds() uint32 {
	secs := c.LeaseTime / time.Second
	switch {
	case secs < 0:
		return 0
	case secs > 0xFFFFFFFF:
		return 0xFFFFFFFF
	}
	return uint32(secs)
}

// Responder maps a client request to its reply: Discover gets an Offer and
// Request gets an Ack, both backed by a binding in the pool.
type Responder struct {
	pool *pool.Pool
	cfg  ReplyConfig
}

// NewResponder creates a Responder that allocates from p.
func NewResponder(p *pool.Pool, cfg ReplyConfig) *Responder {
	return &Responder{pool: p, cfg: cfg}
}

// Pool returns the pool the responder allocates from.
func (r *Responder) Pool() *pool.Pool {
	return r.pool
}

// Reply builds the reply for pkt. A nil Reply with a nil error means the
// request is not answered. Inform is answered with ErrUnhandled.
func (r *Responder) Reply(pkt *Packet) (*Reply, dhcpv4.MessageType, error) {
	if !pkt.IsBootRequest() {
		return nil, 0, nil
	}

	var replyType dhcpv4.MessageType
	switch pkt.MessageType {
	case dhcpv4.MessageTypeDiscover:
		replyType = dhcpv4.MessageTypeOffer
	case dhcpv4.MessageTypeRequest:
		replyType = dhcpv4.MessageTypeAck
	case dhcpv4.MessageTypeInform:
		return nil, 0, fmt.Errorf("%s from %s: %w", pkt.MessageType, pkt.CHAddr, ErrUnhandled)
	default:
		return nil, 0, nil
	}

	if dhcpv4.IsZeroMAC(pkt.CHAddr) {
		return nil, 0, fmt.Errorf("%s: %w", pkt.MessageType, ErrNoHardwareAddr)
	}

	// Request is answered from the same sticky binding as Discover.
	ip, err := r.pool.Allocate(pkt.CHAddr)
	if err != nil {
		return nil, 0, fmt.Errorf("%s from %s: %w", pkt.MessageType, pkt.CHAddr, err)
	}

	siaddr := r.cfg.NextServer
	if siaddr == nil {
		siaddr = r.cfg.ServerIP
	}

	opts := make([]Option, 0, 7)
	opts = append(opts,
		DHCPMessageType(replyType),
		ServerIdentifier(r.cfg.ServerIP),
		SubnetMask(r.cfg.SubnetMask),
		LeaseTime(r.cfg.leaseSeconds()),
	)
	if r.cfg.TFTPServer != "" {
		opts = append(opts, TFTPServerName(r.cfg.TFTPServer))
	}
	if r.cfg.BootFile != "" {
		opts = append(opts, BootFileName(r.cfg.BootFile))
	}
	opts = append(opts, End{})

	return &Reply{
		XID:     pkt.XID,
		YIAddr:  ip,
		SIAddr:  siaddr,
		CHAddr:  pkt.CHAddr,
		Options: opts,
	}, replyType, nil
}

// Respond encodes the reply to pkt into buf. It returns the reply length
// (0 when there is no reply) and the reply's message type.
func (r *Responder) Respond(pkt *Packet, buf []byte) (int, dhcpv4.MessageType, error) {
	reply, mt, err := r.Reply(pkt)
	if err != nil || reply == nil {
		return 0, 0, err
	}
	n, err := reply.Encode(buf)
	if err != nil {
		return 0, 0, fmt.Errorf("encoding %s: %w", mt, err)
	}
	return n, mt, nil
}
