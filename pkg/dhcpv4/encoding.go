package dhcpv4

import (
	"encoding/binary"
	"fmt"
	"net"
)

// IPToBytes converts a net.IP to a 4-byte slice.
func IPToBytes(ip net.IP) []byte {
	ip4 := ip.To4()
	if ip4 == nil {
		return []byte{0, 0, 0, 0}
	}
	return []byte(ip4)
}

// BytesToIP converts a 4-byte slice to net.IP.
func BytesToIP(b []byte) net.IP {
	if len(b) != 4 {
		return nil
	}
	return net.IPv4(b[0], b[1], b[2], b[3])
}

// PutIP writes the IPv4 form of ip into b[0:4]. A nil or non-IPv4 address is written as 0.0.0.0.
func PutIP(b []byte, ip net.IP) {
	copy(b[:4], IPToBytes(ip))
}

// Uint16ToBytes converts a uint16 to 2 bytes (big-endian).
func Uint16ToBytes(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}

// BytesToUint16 converts 2 bytes to uint16 (big-endian).
func BytesToUint16(b []byte) (uint16, error) {
	if len(b) != 2 {
		return 0, fmt.Errorf("invalid uint16 length %d: expected 2", len(b))
	}
	return binary.BigEndian.Uint16(b), nil
}

// Uint32ToBytes converts a uint32 to 4 bytes (big-endian).
func Uint32ToBytes(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

// BytesToUint32 converts 4 bytes to uint32 (big-endian).
func BytesToUint32(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("invalid uint32 length %d: expected 4", len(b))
	}
	return binary.BigEndian.Uint32(b), nil
}

// IPToUint32 converts a net.IP to a uint32.
func IPToUint32(ip net.IP) uint32 {
	ip4 := ip.To4()
	if ip4 == nil {
		return 0
	}
	return binary.BigEndian.Uint32(ip4)
}

// Uint32ToIP converts a uint32 to a net.IP.
func Uint32ToIP(n uint32) net.IP {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, n)
	return net.IPv4(b[0], b[1], b[2], b[3])
}

// IPRangeSize returns the number of IPs in a range (inclusive).
func IPRangeSize(start, end net.IP) uint32 {
	s := IPToUint32(start)
	e := IPToUint32(end)
	if e < s {
		return 0
	}
	return e - s + 1
}

// IsZeroMAC reports whether every byte of mac is zero (an empty slice counts as zero).
func IsZeroMAC(mac net.HardwareAddr) bool {
	for _, b := range mac {
		if b != 0 {
			return false
		}
	}
	return true
}

// FormatXID renders a transaction ID the way it is logged everywhere.
func FormatXID(xid uint32) string {
	return fmt.Sprintf("%08x", xid)
}
