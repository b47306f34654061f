package dhcp

import (
	"errors"
	"fmt"

	"github.com/pxe-dhcpd/pxe-dhcpd/pkg/dhcpv4"
)

// Decode failures. A DecodeError always wraps one of these (or
// dhcpv4.ErrInvalidMessageType), so callers can match with errors.Is.
var (
	ErrOptionOverrun    = errors.New("option length overruns datagram")
	ErrOptionLength     = errors.New("option has invalid length")
	ErrParamListTooLong = errors.New("parameter request list exceeds capacity")
	ErrInvalidHostName  = errors.New("host name is not valid UTF-8")
	ErrInvalidMachineID = errors.New("client machine identifier has non-zero type")
	ErrTooManyOptions   = errors.New("too many options")
	ErrBufferTooSmall   = errors.New("buffer too small")
	ErrOptionTooLong    = errors.New("option payload exceeds 255 bytes")
	ErrUnhandled        = errors.New("message type recognised but not handled")
	ErrNoHardwareAddr   = errors.New("request carries no client hardware address")
)

// DecodeError describes why a recognised DHCP packet was rejected.
type DecodeError struct {
	Code   dhcpv4.OptionCode // option being decoded
	Offset int               // byte offset of the option tag in the datagram
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding option %d at offset %d: %v", e.Code, e.Offset, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
