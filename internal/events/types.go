// Package events provides the lease event bus for pxe-dhcpd.
package events

import (
	"net"
	"time"
)

// EventType represents a DHCP lifecycle event.
type EventType string

const (
	EventLeaseOffer EventType = "lease.offer"
	EventLeaseAck   EventType = "lease.ack"
)

// Event is the core event payload passed through the event bus.
type Event struct {
	Type      EventType  `json:"type"`
	Timestamp time.Time  `json:"timestamp"`
	Lease     *LeaseData `json:"lease,omitempty"`
	Reason    string     `json:"reason,omitempty"`
}

// LeaseData carries lease information in events. Every field is owned by the
// event; nothing aliases a receive buffer.
type LeaseData struct {
	IP       net.IP           `json:"ip"`
	MAC      net.HardwareAddr `json:"mac"`
	XID      uint32           `json:"xid"`
	Hostname string           `json:"hostname,omitempty"`
	Arch     string           `json:"arch,omitempty"`
	UUID     string           `json:"uuid,omitempty"`
	BootFile string           `json:"boot_file,omitempty"`
	Start    int64            `json:"start"`
	Expiry   int64            `json:"expiry"`
}
