package client

import (
	"fmt"
	"net"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

// Connect runs the SOCKS5 CONNECT flow against an already-dialed proxy
// connection: authenticate, request a connection to target, and read the
// reply. On success the caller owns conn for the lifetime of the relayed
// TCP stream (the proxy's bound address, as reported in the reply, is
// returned for informational use). A zero timeout means no deadline.
func Connect(conn net.Conn, opts AuthOptions, target addr.Addr, timeout time.Duration) (addr.Addr, error) {
	var bound addr.Addr
	err := withDeadline(conn, timeout, func() error {
		if err := auth(conn, opts); err != nil {
			return err
		}

		req := wire.Request{Cmd: wire.CmdConnect, Dest: target}
		if err := req.Write(conn); err != nil {
			return fmt.Errorf("writing CONNECT request: %w", err)
		}

		reply, err := wire.ReadReply(conn)
		if err != nil {
			return fmt.Errorf("reading CONNECT reply: %w", err)
		}
		if reply.Rep != wire.RepSuccess {
			return replyToError(reply.Rep)
		}
		bound = reply.Bound
		return nil
	})
	return bound, err
}
