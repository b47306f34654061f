package dhcpv4

import (
	"errors"
	"testing"
)

func TestMessageTypeString(t *testing.T) {
	tests := []struct {
		mt   MessageType
		want string
	}{
		{MessageTypeDiscover, "DHCPDISCOVER"},
		{MessageTypeOffer, "DHCPOFFER"},
		{MessageTypeRequest, "DHCPREQUEST"},
		{MessageTypeDecline, "DHCPDECLINE"},
		{MessageTypeAck, "DHCPACK"},
		{MessageTypeNak, "DHCPNAK"},
		{MessageTypeRelease, "DHCPRELEASE"},
		{MessageTypeInform, "DHCPINFORM"},
		{MessageType(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("MessageType(%d).String() = %q, want %q", tt.mt, got, tt.want)
		}
	}
}

func TestParseMessageType(t *testing.T) {
	for b := byte(1); b <= 8; b++ {
		mt, err := ParseMessageType(b)
		if err != nil {
			t.Fatalf("ParseMessageType(%d) error: %v", b, err)
		}
		if byte(mt) != b {
			t.Errorf("ParseMessageType(%d) = %d", b, mt)
		}
	}

	// RFC 2131 numbering, not the alternate table
	if mt, _ := ParseMessageType(4); mt != MessageTypeDecline {
		t.Errorf("4 = %s, want DHCPDECLINE", mt)
	}
	if mt, _ := ParseMessageType(5); mt != MessageTypeAck {
		t.Errorf("5 = %s, want DHCPACK", mt)
	}

	for _, b := range []byte{0, 9, 42, 255} {
		if _, err := ParseMessageType(b); !errors.Is(err, ErrInvalidMessageType) {
			t.Errorf("ParseMessageType(%d) err = %v, want ErrInvalidMessageType", b, err)
		}
	}
}

func TestOptionCodeValues(t *testing.T) {
	// Verify option codes match RFC 2132 / RFC 4578 values
	tests := []struct {
		code OptionCode
		want byte
	}{
		{OptionPad, 0},
		{OptionSubnetMask, 1},
		{OptionHostname, 12},
		{OptionRequestedIP, 50},
		{OptionIPLeaseTime, 51},
		{OptionDHCPMessageType, 53},
		{OptionServerIdentifier, 54},
		{OptionParameterRequestList, 55},
		{OptionMaxDHCPMessageSize, 57},
		{OptionVendorClassID, 60},
		{OptionClientIdentifier, 61},
		{OptionTFTPServerName, 66},
		{OptionBootfileName, 67},
		{OptionUserClass, 77},
		{OptionClientArch, 93},
		{OptionClientNDI, 94},
		{OptionClientMachineID, 97},
		{OptionEtherboot, 175},
		{OptionEnd, 255},
	}
	for _, tt := range tests {
		if byte(tt.code) != tt.want {
			t.Errorf("OptionCode %d: got %d, want %d", tt.code, byte(tt.code), tt.want)
		}
	}
}

func TestParseClientArch(t *testing.T) {
	tests := []struct {
		code uint16
		want ClientArch
		name string
	}{
		{0, ArchIntelX86, "IntelX86"},
		{6, ArchEFIIA32, "EFI IA32"},
		{7, ArchEFIBC, "EFI BC"},
		{9, ArchEFIX86_64, "EFI x86-64"},
		{10, ArchUnknown, "Unknown"},
		{0x0B, ArchUnknown, "Unknown"},
		{0xFFFF, ArchUnknown, "Unknown"},
	}
	for _, tt := range tests {
		got := ParseClientArch(tt.code)
		if got != tt.want {
			t.Errorf("ParseClientArch(%d) = %v, want %v", tt.code, got, tt.want)
		}
		if got.String() != tt.name {
			t.Errorf("ParseClientArch(%d).String() = %q, want %q", tt.code, got.String(), tt.name)
		}
	}
}

func TestHeaderLayout(t *testing.T) {
	if OffsetCHAddr+16 != OffsetSName {
		t.Errorf("chaddr field must be 16 bytes")
	}
	if OffsetSName+64 != OffsetFile {
		t.Errorf("sname field must be 64 bytes")
	}
	if OffsetFile+128 != OffsetMagic {
		t.Errorf("file field must be 128 bytes")
	}
	if OffsetMagic+len(MagicCookie) != HeaderSize {
		t.Errorf("HeaderSize = %d, want %d", HeaderSize, OffsetMagic+len(MagicCookie))
	}
}
