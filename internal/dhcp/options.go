package dhcp

import (
	"encoding/binary"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Capacity limits for decoded option data.
const (
	MaxOptions       = 20 // typed options kept per packet
	MaxParamRequests = 50 // entries in a parameter request list
)

// Option is a typed DHCP option value. The set is closed: only the types in
// this file implement it.
type Option interface {
	Code() dhcpv4.OptionCode
	// Len is the payload length, excluding tag and length bytes.
	Len() int
	putPayload(b []byte)
}

// SubnetMask is option 1.
type SubnetMask net.IPMask

// HostName is option 12. It aliases the datagram it was decoded from.
type HostName []byte

// RequestedIPAddr is option 50.
type RequestedIPAddr net.IP

// LeaseTime is option 51, in seconds.
type LeaseTime uint32

// DHCPMessageType is option 53.
type DHCPMessageType dhcpv4.MessageType

// ServerIdentifier is option 54.
type ServerIdentifier net.IP

// ParameterRequestList is option 55: the raw option codes a client asked for.
type ParameterRequestList []byte

// MaxMessageSize is option 57.
type MaxMessageSize uint16

// ClientIdentifier is option 61 in its hardware-type + MAC form.
type ClientIdentifier struct {
	HardwareType dhcpv4.HardwareType
	MAC          net.HardwareAddr
}

// TFTPServerName is option 66.
type TFTPServerName string

// BootFileName is option 67.
type BootFileName string

// End is option 255.
type End struct{}

func (SubnetMask) Code() dhcpv4.OptionCode           { return dhcpv4.OptionSubnetMask }
func (HostName) Code() dhcpv4.OptionCode             { return dhcpv4.OptionHostname }
func (RequestedIPAddr) Code() dhcpv4.OptionCode      { return dhcpv4.OptionRequestedIP }
func (LeaseTime) Code() dhcpv4.OptionCode            { return dhcpv4.OptionIPLeaseTime }
func (DHCPMessageType) Code() dhcpv4.OptionCode      { return dhcpv4.OptionDHCPMessageType }
func (ServerIdentifier) Code() dhcpv4.OptionCode     { return dhcpv4.OptionServerIdentifier }
func (ParameterRequestList) Code() dhcpv4.OptionCode { return dhcpv4.OptionParameterRequestList }
func (MaxMessageSize) Code() dhcpv4.OptionCode       { return dhcpv4.OptionMaxDHCPMessageSize }
func (ClientIdentifier) Code() dhcpv4.OptionCode     { return dhcpv4.OptionClientIdentifier }
func (TFTPServerName) Code() dhcpv4.OptionCode       { return dhcpv4.OptionTFTPServerName }
func (BootFileName) Code() dhcpv4.OptionCode         { return dhcpv4.OptionBootfileName }
func (End) Code() dhcpv4.OptionCode                  { return dhcpv4.OptionEnd }

func (SubnetMask) Len() int             { return 4 }
func (o HostName) Len() int             { return len(o) }
func (RequestedIPAddr) Len() int        { return 4 }
func (LeaseTime) Len() int              { return 4 }
func (DHCPMessageType) Len() int        { return 1 }
func (ServerIdentifier) Len() int       { return 4 }
func (o ParameterRequestList) Len() int { return len(o) }
func (MaxMessageSize) Len() int         { return 2 }
func (ClientIdentifier) Len() int       { return 1 + dhcpv4.EthernetAddrLen }
func (o TFTPServerName) Len() int       { return len(o) }
func (o BootFileName) Len() int         { return len(o) }
func (End) Len() int                    { return 0 }

func (o SubnetMask) putPayload(b []byte)           { dhcpv4.PutIP(b, net.IP(o)) }
func (o HostName) putPayload(b []byte)             { copy(b, o) }
func (o RequestedIPAddr) putPayload(b []byte)      { dhcpv4.PutIP(b, net.IP(o)) }
func (o LeaseTime) putPayload(b []byte)            { binary.BigEndian.PutUint32(b, uint32(o)) }
func (o DHCPMessageType) putPayload(b []byte)      { b[0] = byte(o) }
func (o ServerIdentifier) putPayload(b []byte)     { dhcpv4.PutIP(b, net.IP(o)) }
func (o ParameterRequestList) putPayload(b []byte) { copy(b, o) }
func (o MaxMessageSize) putPayload(b []byte)       { binary.BigEndian.PutUint16(b, uint16(o)) }
func (o TFTPServerName) putPayload(b []byte)       { copy(b, o) }
func (o BootFileName) putPayload(b []byte)         { copy(b, o) }
func (End) putPayload([]byte)                      {}

func (o ClientIdentifier) putPayload(b []byte) {
	b[0] = byte(o.HardwareType)
	clear(b[1 : 1+dhcpv4.EthernetAddrLen])
	copy(b[1:1+dhcpv4.EthernetAddrLen], o.MAC)
}

func (o HostName) String() string { return string(o) }

// EncodeOption writes opt as tag, length, payload into buf and returns the
// number of bytes written. End is written as a single tag byte.
func EncodeOption(opt Option, buf []byte) (int, error) {
	code := opt.Code()
	if code == dhcpv4.OptionEnd {
		if len(buf) < 1 {
			return 0, fmt.Errorf("encoding option %d: %w", code, ErrBufferTooSmall)
		}
		buf[0] = byte(code)
		return 1, nil
	}

	n := opt.Len()
	if n > 255 {
		return 0, fmt.Errorf("encoding option %d (%d bytes): %w", code, n, ErrOptionTooLong)
	}
	if len(buf) < 2+n {
		return 0, fmt.Errorf("encoding option %d: need %d bytes, have %d: %w", code, 2+n, len(buf), ErrBufferTooSmall)
	}
	buf[0] = byte(code)
	buf[1] = byte(n)
	opt.putPayload(buf[2 : 2+n])
	return 2 + n, nil
}

// optionKind says where a decoded tag's value goes.
type optionKind int

const (
	kindOrdinary optionKind = iota // appended to Packet.Options
	kindPXE                        // folded into Packet.PXE
	kindIgnored                    // length consumed, nothing recorded
)

// optionCodec is one row of the tag dispatch table.
type optionCodec struct {
	name   string
	kind   optionKind
	decode func(payload []byte) (Option, error) // a nil Option means nothing to record
	apply  func(payload []byte, pxe *PXEInfo) error
}

// optionCodecs maps every recognised tag to its decode strategy. Tags that are
// absent fall through to the same path as kindIgnored.
var optionCodecs = map[dhcpv4.OptionCode]optionCodec{
	dhcpv4.OptionSubnetMask:           {name: "Subnet Mask", kind: kindIgnored},
	dhcpv4.OptionHostname:             {name: "Host Name", kind: kindOrdinary, decode: decodeHostName},
	dhcpv4.OptionRequestedIP:          {name: "Requested IP", kind: kindOrdinary, decode: decodeRequestedIP},
	dhcpv4.OptionIPLeaseTime:          {name: "IP Lease Time", kind: kindIgnored},
	dhcpv4.OptionDHCPMessageType:      {name: "DHCP Message Type", kind: kindOrdinary, decode: decodeMessageType},
	dhcpv4.OptionServerIdentifier:     {name: "Server Identifier", kind: kindOrdinary, decode: decodeServerIdentifier},
	dhcpv4.OptionParameterRequestList: {name: "Parameter Request List", kind: kindOrdinary, decode: decodeParamRequestList},
	dhcpv4.OptionMaxDHCPMessageSize:   {name: "Max DHCP Message Size", kind: kindOrdinary, decode: decodeMaxMessageSize},
	dhcpv4.OptionVendorClassID:        {name: "Vendor Class Identifier", kind: kindIgnored},
	dhcpv4.OptionClientIdentifier:     {name: "Client Identifier", kind: kindOrdinary, decode: decodeClientIdentifier},
	dhcpv4.OptionTFTPServerName:       {name: "TFTP Server Name", kind: kindOrdinary, decode: decodeTFTPServerName},
	dhcpv4.OptionBootfileName:         {name: "Bootfile Name", kind: kindOrdinary, decode: decodeBootFileName},
	dhcpv4.OptionUserClass:            {name: "User Class", kind: kindIgnored},
	dhcpv4.OptionClientArch:           {name: "Client System Architecture", kind: kindPXE, apply: applyClientArch},
	dhcpv4.OptionClientNDI:            {name: "Client Network Interface Identifier", kind: kindPXE, apply: applyClientNDI},
	dhcpv4.OptionClientMachineID:      {name: "Client Machine Identifier", kind: kindPXE, apply: applyClientMachineID},
	dhcpv4.OptionEtherboot:            {name: "Etherboot", kind: kindIgnored},
}

// OptionName returns a human-readable name for a recognised tag, or "" for an unknown one.
func OptionName(code dhcpv4.OptionCode) string {
	if code == dhcpv4.OptionEnd {
		return "End"
	}
	return optionCodecs[code].name
}

func expectLen(payload []byte, n int) error {
	if len(payload) != n {
		return fmt.Errorf("%w: got %d bytes, expected %d", ErrOptionLength, len(payload), n)
	}
	return nil
}

func decodeHostName(p []byte) (Option, error) {
	if !utf8.Valid(p) {
		return nil, ErrInvalidHostName
	}
	return HostName(p), nil
}

func decodeRequestedIP(p []byte) (Option, error) {
	if err := expectLen(p, 4); err != nil {
		return nil, err
	}
	return RequestedIPAddr(p), nil
}

func decodeMessageType(p []byte) (Option, error) {
	if err := expectLen(p, 1); err != nil {
		return nil, err
	}
	mt, err := dhcpv4.ParseMessageType(p[0])
	if err != nil {
		return nil, err
	}
	return DHCPMessageType(mt), nil
}

func decodeServerIdentifier(p []byte) (Option, error) {
	if err := expectLen(p, 4); err != nil {
		return nil, err
	}
	return ServerIdentifier(p), nil
}

func decodeParamRequestList(p []byte) (Option, error) {
	if len(p) > MaxParamRequests {
		return nil, fmt.Errorf("%w: %d entries, capacity %d", ErrParamListTooLong, len(p), MaxParamRequests)
	}
	return ParameterRequestList(p), nil
}

func decodeMaxMessageSize(p []byte) (Option, error) {
	v, err := dhcpv4.BytesToUint16(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOptionLength, err)
	}
	return MaxMessageSize(v), nil
}

// decodeClientIdentifier types only the hardware-type + MAC form. Other
// identifier forms (DUIDs, opaque strings) are consumed without a value.
func decodeClientIdentifier(p []byte) (Option, error) {
	if len(p) < 2 {
		return nil, fmt.Errorf("%w: got %d bytes, need at least 2", ErrOptionLength, len(p))
	}
	if len(p) != 1+dhcpv4.EthernetAddrLen {
		return nil, nil
	}
	return ClientIdentifier{
		HardwareType: dhcpv4.HardwareType(p[0]),
		MAC:          net.HardwareAddr(p[1:]),
	}, nil
}

func decodeTFTPServerName(p []byte) (Option, error) {
	return TFTPServerName(p), nil
}

func decodeBootFileName(p []byte) (Option, error) {
	return BootFileName(p), nil
}
