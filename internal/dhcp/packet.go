// Package dhcp implements the PXE DHCP responder: packet decoding, the option
// codec, Offer/Ack construction and the UDP server loop.
package dhcp

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Packet is a decoded DHCPv4 request (RFC 2131 §2).
//
// Address fields, CHAddr, SName, File and string option values are slices of
// the datagram passed to DecodePacket. The packet is only valid until that
// buffer is reused.
type Packet struct {
	Op     dhcpv4.OpCode       // 1=BOOTREQUEST, 2=BOOTREPLY
	HType  dhcpv4.HardwareType // stored, not used to size CHAddr
	HLen   byte                // stored, not used to size CHAddr
	Hops   byte
	XID    uint32
	Secs   uint16
	Flags  uint16
	CIAddr net.IP
	YIAddr net.IP
	SIAddr net.IP
	GIAddr net.IP
	CHAddr net.HardwareAddr // first 6 bytes of the 16-byte chaddr field
	SName  []byte
	File   []byte

	// Options holds the recognised options in wire order.
	Options []Option

	// MessageType is the value of option 53, or zero when it was absent.
	MessageType dhcpv4.MessageType

	PXE PXEInfo

	// ReceivingInterface is set by the server to indicate which network
	// interface this packet arrived on. Not part of the wire format.
	ReceivingInterface string
}

// DecodePacket parses a DHCPv4 datagram.
//
// A datagram shorter than the fixed header or without the magic cookie is not
// DHCP and yields (nil, nil). A DHCP datagram with a malformed option yields a
// *DecodeError.
func DecodePacket(data []byte) (*Packet, error) {
	if len(data) < dhcpv4.HeaderSize {
		return nil, nil
	}
	if !bytes.Equal(data[dhcpv4.OffsetMagic:dhcpv4.HeaderSize], dhcpv4.MagicCookie) {
		return nil, nil
	}

	p := &Packet{
		Op:      dhcpv4.OpCode(data[dhcpv4.OffsetOp]),
		HType:   dhcpv4.HardwareType(data[dhcpv4.OffsetHType]),
		HLen:    data[dhcpv4.OffsetHLen],
		Hops:    data[dhcpv4.OffsetHops],
		XID:     binary.BigEndian.Uint32(data[dhcpv4.OffsetXID:]),
		Secs:    binary.BigEndian.Uint16(data[dhcpv4.OffsetSecs:]),
		Flags:   binary.BigEndian.Uint16(data[dhcpv4.OffsetFlags:]),
		CIAddr:  net.IP(field(data, dhcpv4.OffsetCIAddr, 4)),
		YIAddr:  net.IP(field(data, dhcpv4.OffsetYIAddr, 4)),
		SIAddr:  net.IP(field(data, dhcpv4.OffsetSIAddr, 4)),
		GIAddr:  net.IP(field(data, dhcpv4.OffsetGIAddr, 4)),
		CHAddr:  net.HardwareAddr(field(data, dhcpv4.OffsetCHAddr, dhcpv4.EthernetAddrLen)),
		SName:   field(data, dhcpv4.OffsetSName, dhcpv4.OffsetFile-dhcpv4.OffsetSName),
		File:    field(data, dhcpv4.OffsetFile, dhcpv4.OffsetMagic-dhcpv4.OffsetFile),
		Options: make([]Option, 0, MaxOptions),
		PXE:     newPXEInfo(),
	}

	if err := p.decodeOptions(data); err != nil {
		return nil, err
	}
	return p, nil
}

// field returns data[off:off+n] with its capacity clipped so that appends
// cannot write into the neighbouring field.
func field(data []byte, off, n int) []byte {
	return data[off : off+n : off+n]
}

func (p *Packet) decodeOptions(data []byte) error {
	i := dhcpv4.HeaderSize
	for i < len(data) {
		code := dhcpv4.OptionCode(data[i])
		switch code {
		case dhcpv4.OptionEnd:
			return nil
		case dhcpv4.OptionPad:
			i++
			continue
		}

		// A tag without its length byte is treated as the end of the stream.
		if len(data)-i < 2 {
			return nil
		}
		n := int(data[i+1])
		start := i + 2
		if n > len(data)-start {
			return &DecodeError{Code: code, Offset: i, Err: fmt.Errorf("%w: declared %d bytes, %d remain", ErrOptionOverrun, n, len(data)-start)}
		}
		if err := p.decodeOption(code, field(data, start, n)); err != nil {
			return &DecodeError{Code: code, Offset: i, Err: err}
		}
		i = start + n
	}
	return nil
}

func (p *Packet) decodeOption(code dhcpv4.OptionCode, payload []byte) error {
	codec, ok := optionCodecs[code]
	if !ok {
		return nil
	}

	switch codec.kind {
	case kindPXE:
		return codec.apply(payload, &p.PXE)
	case kindOrdinary:
		opt, err := codec.decode(payload)
		if err != nil {
			return err
		}
		if opt == nil {
			return nil
		}
		if len(p.Options) == MaxOptions {
			return fmt.Errorf("%w: capacity %d", ErrTooManyOptions, MaxOptions)
		}
		p.Options = append(p.Options, opt)
		if mt, ok := opt.(DHCPMessageType); ok {
			p.MessageType = dhcpv4.MessageType(mt)
		}
	}
	return nil
}

// Option returns the first decoded option with the given code.
func (p *Packet) Option(code dhcpv4.OptionCode) (Option, bool) {
	for _, o := range p.Options {
		if o.Code() == code {
			return o, true
		}
	}
	return nil, false
}

// HostName returns option 12, or "" when absent.
func (p *Packet) HostName() string {
	if o, ok := p.Option(dhcpv4.OptionHostname); ok {
		return o.(HostName).String()
	}
	return ""
}

// RequestedIP returns option 50, or nil when absent.
func (p *Packet) RequestedIP() net.IP {
	if o, ok := p.Option(dhcpv4.OptionRequestedIP); ok {
		return net.IP(o.(RequestedIPAddr))
	}
	return nil
}

// ParameterRequestList returns the option codes listed in option 55.
func (p *Packet) ParameterRequestList() []dhcpv4.OptionCode {
	o, ok := p.Option(dhcpv4.OptionParameterRequestList)
	if !ok {
		return nil
	}
	raw := o.(ParameterRequestList)
	codes := make([]dhcpv4.OptionCode, len(raw))
	for i, b := range raw {
		codes[i] = dhcpv4.OptionCode(b)
	}
	return codes
}

// IsBootRequest reports whether the packet came from a client.
func (p *Packet) IsBootRequest() bool {
	return p.Op == dhcpv4.OpCodeBootRequest
}

// Reply is a server message ready to be serialised.
type Reply struct {
	XID     uint32
	YIAddr  net.IP
	SIAddr  net.IP
	CHAddr  net.HardwareAddr
	Options []Option // written in order; End is appended if missing
}

// Encode serialises r into buf and returns the number of bytes used. The
// output is zero-padded to the BOOTP minimum of 300 bytes.
func (r *Reply) Encode(buf []byte) (int, error) {
	if len(buf) < dhcpv4.MinPacketSize {
		return 0, fmt.Errorf("encoding reply: need %d bytes, have %d: %w", dhcpv4.MinPacketSize, len(buf), ErrBufferTooSmall)
	}

	clear(buf[:dhcpv4.HeaderSize])
	buf[dhcpv4.OffsetOp] = byte(dhcpv4.OpCodeBootReply)
	buf[dhcpv4.OffsetHType] = byte(dhcpv4.HardwareTypeEthernet)
	buf[dhcpv4.OffsetHLen] = dhcpv4.EthernetAddrLen
	binary.BigEndian.PutUint32(buf[dhcpv4.OffsetXID:], r.XID)
	dhcpv4.PutIP(buf[dhcpv4.OffsetYIAddr:], r.YIAddr)
	dhcpv4.PutIP(buf[dhcpv4.OffsetSIAddr:], r.SIAddr)
	copy(buf[dhcpv4.OffsetCHAddr:dhcpv4.OffsetCHAddr+dhcpv4.EthernetAddrLen], r.CHAddr)
	copy(buf[dhcpv4.OffsetMagic:], dhcpv4.MagicCookie)

	n := dhcpv4.HeaderSize
	ended := false
	for _, opt := range r.Options {
		w, err := EncodeOption(opt, buf[n:])
		if err != nil {
			return 0, err
		}
		n += w
		if opt.Code() == dhcpv4.OptionEnd {
			ended = true
			break
		}
	}
	if !ended {
		w, err := EncodeOption(End{}, buf[n:])
		if err != nil {
			return 0, err
		}
		n += w
	}

	if n < dhcpv4.MinPacketSize {
		clear(buf[n:dhcpv4.MinPacketSize])
		n = dhcpv4.MinPacketSize
	}
	return n, nil
}
