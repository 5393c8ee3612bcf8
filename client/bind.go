package client

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/netio"
	"socks5core/pkg/wire"
)

// bindState carries the control connection across FirstBindStep and
// SecondBindStep.
type bindState struct {
	conn net.Conn
}

// FirstBindStep authenticates and sends a BIND request, then reads the
// proxy's first reply: the endpoint on which it will accept the inbound
// connection. Per RFC 1928 section 6, an all-zero BND.ADDR IP means "same
// IP as the TCP peer, port as given in the reply"; each address type is
// resolved independently here.
func FirstBindStep(conn net.Conn, opts AuthOptions, expectedInbound addr.Addr, timeout time.Duration) (*bindState, addr.Addr, error) {
	st := &bindState{conn: conn}

	var endpoint addr.Addr
	err := withDeadline(conn, timeout, func() error {
		if err := auth(conn, opts); err != nil {
			return err
		}

		req := wire.Request{Cmd: wire.CmdBind, Dest: expectedInbound}
		if err := req.Write(conn); err != nil {
			return fmt.Errorf("writing BIND request: %w", err)
		}

		reply, err := wire.ReadReply(conn)
		if err != nil {
			return fmt.Errorf("reading first BIND reply: %w", err)
		}
		if reply.Rep != wire.RepSuccess {
			return replyToError(reply.Rep)
		}

		endpoint, err = resolveBoundEndpoint(reply.Bound, conn)
		return err
	})
	if err != nil {
		return nil, addr.Addr{}, err
	}
	return st, endpoint, nil
}

// SecondBindStep reads the proxy's second reply, carrying the accepted
// peer's address, off the same control connection FirstBindStep used.
func SecondBindStep(st *bindState, timeout time.Duration) (addr.Addr, error) {
	var peer addr.Addr
	err := withDeadline(st.conn, timeout, func() error {
		reply, err := wire.ReadReply(st.conn)
		if err != nil {
			return fmt.Errorf("reading second BIND reply: %w", err)
		}
		if reply.Rep != wire.RepSuccess {
			return replyToError(reply.Rep)
		}
		peer = reply.Bound
		return nil
	})
	return peer, err
}

// resolveBoundEndpoint turns the first reply's BND.ADDR into a concrete
// endpoint, handling each ATYP on its own: a domain is resolved via DNS,
// a non-zero IP is taken as-is, and an all-zero IP is substituted by the
// TCP peer's.
func resolveBoundEndpoint(bound addr.Addr, conn net.Conn) (addr.Addr, error) {
	if domain, ok := bound.Domain(); ok {
		eps, err := netio.Resolve(context.Background(), domain, bound.Port())
		if err != nil {
			return addr.Addr{}, fmt.Errorf("socks5: resolving BIND endpoint %q: %w", domain, err)
		}
		return addr.FromIP(eps[0].Addr(), bound.Port())
	}
	if !bound.IsZeroIP() {
		return bound, nil
	}

	peerAddr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return addr.Addr{}, fmt.Errorf("socks5: TCP peer address %T is not *net.TCPAddr", conn.RemoteAddr())
	}
	peerIP, ok := netip.AddrFromSlice(peerAddr.IP)
	if !ok {
		return addr.Addr{}, fmt.Errorf("socks5: could not convert peer IP %s", peerAddr.IP)
	}
	return addr.FromIP(peerIP, bound.Port())
}
