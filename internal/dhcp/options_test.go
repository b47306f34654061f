package dhcp

import (
	"bytes"
	"errors"
	"net"
	"strings"
	"testing"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

func TestEncodeOption(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want []byte
	}{
		{"subnet mask", SubnetMask(net.CIDRMask(24, 32)), []byte{1, 4, 255, 255, 255, 0}},
		{"host name", HostName("pc"), []byte{12, 2, 'p', 'c'}},
		{"requested ip", RequestedIPAddr(net.IPv4(10, 0, 0, 5)), []byte{50, 4, 10, 0, 0, 5}},
		{"lease time", LeaseTime(86400), []byte{51, 4, 0x00, 0x01, 0x51, 0x80}},
		{"message type", DHCPMessageType(dhcpv4.MessageTypeAck), []byte{53, 1, 5}},
		{"server id", ServerIdentifier(net.IPv4(192, 168, 1, 67)), []byte{54, 4, 192, 168, 1, 67}},
		{"parameter request list", ParameterRequestList{1, 3, 66, 67}, []byte{55, 4, 1, 3, 66, 67}},
		{"max message size", MaxMessageSize(1500), []byte{57, 2, 0x05, 0xdc}},
		{
			"client identifier",
			ClientIdentifier{HardwareType: dhcpv4.HardwareTypeEthernet, MAC: testMAC},
			[]byte{61, 7, 1, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		},
		{"tftp server", TFTPServerName("boot.lan"), []byte{66, 8, 'b', 'o', 'o', 't', '.', 'l', 'a', 'n'}},
		{"boot file", BootFileName("pxelinux.0"), append([]byte{67, 10}, "pxelinux.0"...)},
		{"empty boot file", BootFileName(""), []byte{67, 0}},
		{"end", End{}, []byte{255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 64)
			n, err := EncodeOption(tt.opt, buf)
			if err != nil {
				t.Fatalf("EncodeOption error: %v", err)
			}
			if !bytes.Equal(buf[:n], tt.want) {
				t.Errorf("EncodeOption = %v, want %v", buf[:n], tt.want)
			}
		})
	}
}

func TestEncodeOptionErrors(t *testing.T) {
	long := BootFileName(strings.Repeat("x", 256))
	if _, err := EncodeOption(long, make([]byte, 512)); !errors.Is(err, ErrOptionTooLong) {
		t.Errorf("256-byte payload: err = %v, want ErrOptionTooLong", err)
	}

	max := BootFileName(strings.Repeat("x", 255))
	if n, err := EncodeOption(max, make([]byte, 257)); err != nil || n != 257 {
		t.Errorf("255-byte payload: n = %d, err = %v", n, err)
	}

	if _, err := EncodeOption(LeaseTime(60), make([]byte, 5)); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("short buffer: err = %v, want ErrBufferTooSmall", err)
	}
	if _, err := EncodeOption(End{}, nil); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("end into empty buffer: err = %v, want ErrBufferTooSmall", err)
	}
}

func TestEncodeOptionDecodesBack(t *testing.T) {
	// what the server writes must be readable by its own decoder
	opts := []Option{
		DHCPMessageType(dhcpv4.MessageTypeRequest),
		HostName("node7"),
		ServerIdentifier(net.IPv4(192, 168, 1, 67)),
		TFTPServerName("10.0.0.1"),
		End{},
	}
	buf := make([]byte, 128)
	n := 0
	for _, o := range opts {
		w, err := EncodeOption(o, buf[n:])
		if err != nil {
			t.Fatalf("EncodeOption(%d): %v", o.Code(), err)
		}
		n += w
	}

	pkt, err := DecodePacket(buildRequest(dhcpv4.OpCodeBootRequest, testMAC, 9, buf[:n]...))
	if err != nil {
		t.Fatalf("DecodePacket error: %v", err)
	}
	if pkt.MessageType != dhcpv4.MessageTypeRequest || pkt.HostName() != "node7" {
		t.Errorf("decoded type/host = %s/%q", pkt.MessageType, pkt.HostName())
	}
	if o, ok := pkt.Option(dhcpv4.OptionServerIdentifier); !ok || !net.IP(o.(ServerIdentifier)).Equal(net.IPv4(192, 168, 1, 67)) {
		t.Errorf("server identifier = %v, %v", o, ok)
	}
}

func TestOptionLen(t *testing.T) {
	if got := (ClientIdentifier{}).Len(); got != 7 {
		t.Errorf("ClientIdentifier.Len() = %d, want 7", got)
	}
	if got := (End{}).Len(); got != 0 {
		t.Errorf("End.Len() = %d, want 0", got)
	}
	if got := HostName("abc").Len(); got != 3 {
		t.Errorf("HostName.Len() = %d, want 3", got)
	}
}

func TestOptionName(t *testing.T) {
	tests := []struct {
		code dhcpv4.OptionCode
		want string
	}{
		{dhcpv4.OptionDHCPMessageType, "DHCP Message Type"},
		{dhcpv4.OptionClientArch, "Client System Architecture"},
		{dhcpv4.OptionBootfileName, "Bootfile Name"},
		{dhcpv4.OptionEnd, "End"},
		{200, ""},
	}
	for _, tt := range tests {
		if got := OptionName(tt.code); got != tt.want {
			t.Errorf("OptionName(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
