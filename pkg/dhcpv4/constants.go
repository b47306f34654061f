// Package dhcpv4 provides constants and encoding helpers for DHCPv4 packets.
package dhcpv4

import (
	"errors"
	"fmt"
	"net"
)

// DHCP Message Types (RFC 2131 §9.6)
type MessageType byte

const (
	MessageTypeDiscover MessageType = 1 // DHCPDISCOVER
	MessageTypeOffer    MessageType = 2 // DHCPOFFER
	MessageTypeRequest  MessageType = 3 // DHCPREQUEST
	MessageTypeDecline  MessageType = 4 // DHCPDECLINE
	MessageTypeAck      MessageType = 5 // DHCPACK
	MessageTypeNak      MessageType = 6 // DHCPNAK
	MessageTypeRelease  MessageType = 7 // DHCPRELEASE
	MessageTypeInform   MessageType = 8 // DHCPINFORM
)

// ErrInvalidMessageType is returned for option 53 values outside 1..8.
var ErrInvalidMessageType = errors.New("invalid DHCP message type")

// ParseMessageType validates a raw option 53 byte.
func ParseMessageType(b byte) (MessageType, error) {
	m := MessageType(b)
	if m < MessageTypeDiscover || m > MessageTypeInform {
		return 0, fmt.Errorf("%w: %d", ErrInvalidMessageType, b)
	}
	return m, nil
}

func (m MessageType) String() string {
	switch m {
	case MessageTypeDiscover:
		return "DHCPDISCOVER"
	case MessageTypeOffer:
		return "DHCPOFFER"
	case MessageTypeRequest:
		return "DHCPREQUEST"
	case MessageTypeDecline:
		return "DHCPDECLINE"
	case MessageTypeAck:
		return "DHCPACK"
	case MessageTypeNak:
		return "DHCPNAK"
	case MessageTypeRelease:
		return "DHCPRELEASE"
	case MessageTypeInform:
		return "DHCPINFORM"
	default:
		return "UNKNOWN"
	}
}

// DHCP Op Codes (RFC 2131 §2)
type OpCode byte

const (
	OpCodeBootRequest OpCode = 1 // BOOTREQUEST
	OpCodeBootReply   OpCode = 2 // BOOTREPLY
)

// Hardware Types (RFC 1700)
type HardwareType byte

const (
	HardwareTypeEthernet HardwareType = 1
)

// EthernetAddrLen is the chaddr width used on the wire and in the lease pool.
const EthernetAddrLen = 6

// DHCP Option Codes (RFC 2132, RFC 4578 and iPXE)
type OptionCode byte

const (
	OptionPad                  OptionCode = 0
	OptionSubnetMask           OptionCode = 1
	OptionHostname             OptionCode = 12
	OptionRequestedIP          OptionCode = 50
	OptionIPLeaseTime          OptionCode = 51
	OptionDHCPMessageType      OptionCode = 53
	OptionServerIdentifier     OptionCode = 54
	OptionParameterRequestList OptionCode = 55
	OptionMaxDHCPMessageSize   OptionCode = 57
	OptionVendorClassID        OptionCode = 60
	OptionClientIdentifier     OptionCode = 61
	OptionTFTPServerName       OptionCode = 66
	OptionBootfileName         OptionCode = 67
	OptionUserClass            OptionCode = 77
	OptionClientArch           OptionCode = 93  // RFC 4578 §2.1
	OptionClientNDI            OptionCode = 94  // RFC 4578 §2.2
	OptionClientMachineID      OptionCode = 97  // RFC 4578 §2.3
	OptionEtherboot            OptionCode = 175 // iPXE encapsulated options
	OptionEnd                  OptionCode = 255
)

// Client System Architecture Types (RFC 4578 §2.1)
type ClientArch uint16

const (
	ArchIntelX86 ClientArch = iota
	ArchNECPC98
	ArchEFIItanium
	ArchDECAlpha
	ArchArcX86
	ArchIntelLeanClient
	ArchEFIIA32
	ArchEFIBC
	ArchEFIXscale
	ArchEFIX86_64

	// ArchUnknown is the zero value for PXE state. It is deliberately outside
	// the 16-bit code space used on the wire.
	ArchUnknown ClientArch = 0xFFFF
)

// ParseClientArch maps an option 93 code; unmapped codes become ArchUnknown.
func ParseClientArch(code uint16) ClientArch {
	if code <= uint16(ArchEFIX86_64) {
		return ClientArch(code)
	}
	return ArchUnknown
}

func (a ClientArch) String() string {
	switch a {
	case ArchIntelX86:
		return "IntelX86"
	case ArchNECPC98:
		return "NEC/PC98"
	case ArchEFIItanium:
		return "EFI Itanium"
	case ArchDECAlpha:
		return "DEC Alpha"
	case ArchArcX86:
		return "Arc x86"
	case ArchIntelLeanClient:
		return "Intel Lean Client"
	case ArchEFIIA32:
		return "EFI IA32"
	case ArchEFIBC:
		return "EFI BC"
	case ArchEFIXscale:
		return "EFI Xscale"
	case ArchEFIX86_64:
		return "EFI x86-64"
	default:
		return "Unknown"
	}
}

// Fixed header layout (RFC 2131 §2). Each constant is the offset of the field.
const (
	OffsetOp     = 0
	OffsetHType  = 1
	OffsetHLen   = 2
	OffsetHops   = 3
	OffsetXID    = 4
	OffsetSecs   = 8
	OffsetFlags  = 10
	OffsetCIAddr = 12
	OffsetYIAddr = 16
	OffsetSIAddr = 20
	OffsetGIAddr = 24
	OffsetCHAddr = 28
	OffsetSName  = 44
	OffsetFile   = 108
	OffsetMagic  = 236

	// HeaderSize is the fixed BOOTP header plus the magic cookie.
	HeaderSize = 240
)

// DHCP Packet Size Limits
const (
	MinPacketSize = 300  // Minimum BOOTP reply size (RFC 951)
	MaxPacketSize = 1500 // Maximum DHCP packet size (Ethernet MTU)
)

// DHCP Ports
const (
	ServerPort = 67
	ClientPort = 68
)

// DHCP Magic Cookie (RFC 2131 §3)
var MagicCookie = []byte{99, 130, 83, 99}

// Broadcast and zero addresses
var (
	BroadcastIP = net.IPv4(255, 255, 255, 255)
	ZeroIP      = net.IPv4(0, 0, 0, 0)
)
