package dhcp

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// PXEVersion is the client network interface version carried in option 94.
type PXEVersion struct {
	Major uint8
	Minor uint8
	Patch uint8
}

func (v PXEVersion) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// PXEInfo is the PXE state a client advertises through options 93, 94 and 97
// (RFC 4578). It is filled in while options are decoded.
type PXEInfo struct {
	Arch       dhcpv4.ClientArch
	Version    PXEVersion
	ClientUUID uuid.UUID

	seen bool
}

func newPXEInfo() PXEInfo {
	return PXEInfo{Arch: dhcpv4.ArchUnknown}
}

// Present reports whether any PXE option was decoded.
func (p *PXEInfo) Present() bool {
	return p.seen
}

// applyClientArch handles option 93. The option may list several
// architectures; the first one is the client's native type.
func applyClientArch(payload []byte, pxe *PXEInfo) error {
	if len(payload) < 2 || len(payload)%2 != 0 {
		return fmt.Errorf("%w: architecture list of %d bytes", ErrOptionLength, len(payload))
	}
	pxe.Arch = dhcpv4.ParseClientArch(binary.BigEndian.Uint16(payload[:2]))
	pxe.seen = true
	return nil
}

// applyClientNDI handles option 94: three version bytes.
func applyClientNDI(payload []byte, pxe *PXEInfo) error {
	if err := expectLen(payload, 3); err != nil {
		return err
	}
	pxe.Version = PXEVersion{Major: payload[0], Minor: payload[1], Patch: payload[2]}
	pxe.seen = true
	return nil
}

// applyClientMachineID handles option 97: a zero type byte followed by a 16-byte UUID.
func applyClientMachineID(payload []byte, pxe *PXEInfo) error {
	if err := expectLen(payload, 17); err != nil {
		return err
	}
	if payload[0] != 0 {
		return fmt.Errorf("%w: type %d", ErrInvalidMachineID, payload[0])
	}
	id, err := uuid.FromBytes(payload[1:])
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOptionLength, err)
	}
	pxe.ClientUUID = id
	pxe.seen = true
	return nil
}
