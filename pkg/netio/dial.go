// Package netio wraps net.Conn with the cancellation and metrics behavior
// the TCP relay engine needs: a blocking Read unblockable by a watchdog,
// and every byte moved counted. UDP sockets are only opened here (via
// UDPListenerFunc), not wrapped.
package netio

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// TCPDialerFunc dials a TCP connection; tests substitute a fake dialer
// to stand in a pipe for a real socket.
type TCPDialerFunc func(ctx context.Context, network, address string) (net.Conn, error)

// UDPListenerFunc opens an unconnected UDP socket for relaying datagrams to
// arbitrary peers with WriteTo.
type UDPListenerFunc func(network, address string) (net.PacketConn, error)

// DefaultTCPDialer dials with a 10s connect timeout and 30s TCP
// keepalive.
func DefaultTCPDialer() TCPDialerFunc {
	d := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return d.DialContext
}

// DefaultUDPListener opens an unconnected UDP socket via
// net.ListenPacket.
func DefaultUDPListener() UDPListenerFunc {
	return net.ListenPacket
}

// Resolve looks a domain up via DNS and returns one endpoint per resolved
// IP, all carrying the given port. Mapped IPv4-in-IPv6 addresses are
// unmapped.
func Resolve(ctx context.Context, domain string, port uint16) ([]netip.AddrPort, error) {
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", domain)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", domain, err)
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("resolving %s: no addresses", domain)
	}
	eps := make([]netip.AddrPort, len(ips))
	for i, ip := range ips {
		eps[i] = netip.AddrPortFrom(ip.Unmap(), port)
	}
	return eps, nil
}
