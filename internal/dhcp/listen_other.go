//go:build !unix

package dhcp

import (
	"context"
	"net"
)

func listenUDP(ctx context.Context, addr string) (net.PacketConn, error) {
	var lc net.ListenConfig
	return lc.ListenPacket(ctx, "udp4", addr)
}
