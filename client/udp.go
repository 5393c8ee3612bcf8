package client

import (
	"fmt"
	"net"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

// SendTo wraps data in a SOCKS5 UDP header naming target and sends it to
// the proxy's UDP endpoint over udpConn. A zero timeout means no
// deadline.
func SendTo(udpConn *net.UDPConn, proxyUDP addr.Addr, target addr.Addr, data []byte, timeout time.Duration) error {
	datagram, err := wire.BuildDatagram(wire.DatagramHeader{Dest: target}, data)
	if err != nil {
		return fmt.Errorf("building datagram: %w", err)
	}

	raddr, ok := proxyUDP.AsEndpoint()
	if !ok {
		return fmt.Errorf("socks5: proxy UDP endpoint %v has no IP", proxyUDP)
	}

	if timeout > 0 {
		if err := udpConn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer udpConn.SetWriteDeadline(time.Time{})
	}

	_, err = udpConn.WriteToUDP(datagram, &net.UDPAddr{IP: raddr.IP, Port: raddr.Port})
	return err
}

// ReceiveFrom reads one datagram off udpConn, strips the SOCKS5 UDP
// header, and reports who the datagram actually came from (sender) and
// which target the header named (so the caller can tell a relayed reply
// from an unrelated spoofed packet). A zero timeout means no deadline.
func ReceiveFrom(udpConn *net.UDPConn, timeout time.Duration) (sender *net.UDPAddr, target addr.Addr, data []byte, err error) {
	if timeout > 0 {
		if err := udpConn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, addr.Addr{}, nil, err
		}
		defer udpConn.SetReadDeadline(time.Time{})
	}

	buf := make([]byte, wire.MaxDatagramSize)
	n, from, err := udpConn.ReadFromUDP(buf)
	if err != nil {
		return nil, addr.Addr{}, nil, err
	}

	hdr, payload, err := wire.ParseDatagram(buf[:n])
	if err != nil {
		return nil, addr.Addr{}, nil, fmt.Errorf("parsing datagram from %s: %w", from, err)
	}

	out := make([]byte, len(payload))
	copy(out, payload)
	return from, hdr.Dest, out, nil
}
