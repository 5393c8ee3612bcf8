package client

import (
	"fmt"
	"net"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

// Associate runs the SOCKS5 UDP ASSOCIATE flow: open a local UDP socket on
// an ephemeral port, authenticate over conn, request the association, and
// return the local socket plus the proxy's UDP endpoint (from the reply's
// BND_ADDR/BND_PORT). The caller must keep conn open for the lifetime of
// the association; closing it tells the proxy to tear the UDP relay down.
func Associate(conn net.Conn, opts AuthOptions, timeout time.Duration) (*net.UDPConn, addr.Addr, error) {
	udpConn, err := net.ListenUDP("udp", &net.UDPAddr{})
	if err != nil {
		return nil, addr.Addr{}, fmt.Errorf("opening local UDP socket: %w", err)
	}

	local, err := addr.FromNetAddr(udpConn.LocalAddr())
	if err != nil {
		udpConn.Close()
		return nil, addr.Addr{}, fmt.Errorf("converting local UDP endpoint: %w", err)
	}

	var proxyUDP addr.Addr
	err = withDeadline(conn, timeout, func() error {
		if err := auth(conn, opts); err != nil {
			return err
		}

		req := wire.Request{Cmd: wire.CmdAssociate, Dest: local}
		if err := req.Write(conn); err != nil {
			return fmt.Errorf("writing UDP ASSOCIATE request: %w", err)
		}

		reply, err := wire.ReadReply(conn)
		if err != nil {
			return fmt.Errorf("reading UDP ASSOCIATE reply: %w", err)
		}
		if reply.Rep != wire.RepSuccess {
			return replyToError(reply.Rep)
		}
		proxyUDP = reply.Bound
		return nil
	})
	if err != nil {
		udpConn.Close()
		return nil, addr.Addr{}, err
	}
	return udpConn, proxyUDP, nil
}
