package server

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

// handleBind opens an acceptor on the control connection's local IP with
// an ephemeral port, announces it, waits for one inbound connection, and
// (if configured) validates its source before announcing it too and
// starting the relay.
func (s *Server) handleBind(client net.Conn, req wire.Request) {
	localIP, err := localIPOf(client)
	if err != nil {
		s.logger.ErrorMsg("BIND: resolving local IP: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}

	ln, err := s.tcpListener("tcp", net.JoinHostPort(localIP.String(), "0"))
	if err != nil {
		s.logger.ErrorMsg("BIND: opening acceptor: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}
	defer ln.Close()

	boundEP, err := addr.FromNetAddr(ln.Addr())
	if err != nil {
		s.logger.ErrorMsg("BIND: resolving acceptor endpoint: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}

	// The first reply zeroes the IP: "same IP as the TCP peer, port from
	// the reply" per RFC 1928 §6's BND.ADDR convention, which the client
	// side resolves against its own view of the proxy's address.
	zeroIP := netip.IPv4Unspecified()
	if localIP.Is6() {
		zeroIP = netip.IPv6Unspecified()
	}
	announceEP, err := addr.FromIP(zeroIP, boundEP.Port())
	if err != nil {
		s.logger.ErrorMsg("BIND: building first reply address: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}

	if err := (wire.Reply{Rep: wire.RepSuccess, Bound: announceEP}).Write(client); err != nil {
		s.logger.ErrorMsg("BIND: writing first reply: %s", err)
		return
	}

	accepted, err := acceptWithTimeout(ln, s.cfg.HandshakeTimeout)
	if err != nil {
		s.logger.ErrorMsg("BIND: accept failed: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}

	if s.cfg.BindValidateAcceptedConn {
		ok, err := s.acceptedConnMatchesRequest(accepted, req.Dest)
		if err != nil || !ok {
			if err != nil {
				s.logger.ErrorMsg("BIND: validating accepted peer: %s", err)
			} else {
				s.logger.VerboseMsg("BIND: rejecting accepted peer %s, does not match %s", accepted.RemoteAddr(), req.Dest)
			}
			accepted.Close()
			(wire.Reply{Rep: wire.RepNotAllowed, Bound: addr.Zero(req.Dest.Type())}).Write(client)
			return
		}
	}

	acceptedEP, err := addr.FromNetAddr(accepted.RemoteAddr())
	if err != nil {
		s.logger.ErrorMsg("BIND: resolving accepted peer endpoint: %s", err)
		accepted.Close()
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(client)
		return
	}

	if err := (wire.Reply{Rep: wire.RepSuccess, Bound: acceptedEP}).Write(client); err != nil {
		s.logger.ErrorMsg("BIND: writing second reply: %s", err)
		accepted.Close()
		return
	}

	s.relayTCP(client, accepted, acceptedEP, boundEP)
}

func localIPOf(conn net.Conn) (netip.Addr, error) {
	tcpAddr, ok := conn.LocalAddr().(*net.TCPAddr)
	if !ok {
		return netip.Addr{}, fmt.Errorf("server: local address %v is not a TCP endpoint", conn.LocalAddr())
	}
	ip, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return netip.Addr{}, fmt.Errorf("server: could not convert %s to netip.Addr", tcpAddr.IP)
	}
	return ip.Unmap(), nil
}

func acceptWithTimeout(ln net.Listener, timeout time.Duration) (net.Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- result{conn, err}
	}()

	select {
	case r := <-ch:
		return r.conn, r.err
	case <-time.After(timeout):
		ln.Close()
		r := <-ch
		if r.conn != nil {
			r.conn.Close()
		}
		return nil, fmt.Errorf("server: BIND accept timed out after %s", timeout)
	}
}

// acceptedConnMatchesRequest reports whether accepted's remote IP is one
// of the IPs the request's DST.ADDR resolves to, the check
// BindValidateAcceptedConn enables.
func (s *Server) acceptedConnMatchesRequest(accepted net.Conn, dest addr.Addr) (bool, error) {
	tcpAddr, ok := accepted.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return false, fmt.Errorf("server: accepted peer address %v is not a TCP endpoint", accepted.RemoteAddr())
	}
	peerIP, ok := netip.AddrFromSlice(tcpAddr.IP)
	if !ok {
		return false, fmt.Errorf("server: could not convert %s to netip.Addr", tcpAddr.IP)
	}
	peerIP = peerIP.Unmap()

	if ip, ok := dest.IP(); ok {
		return ip.Unmap() == peerIP, nil
	}

	domain, _ := dest.Domain()
	eps, err := netio.Resolve(context.Background(), domain, dest.Port())
	if err != nil {
		return false, err
	}
	for _, ep := range eps {
		if ep.Addr() == peerIP {
			return true, nil
		}
	}
	return false, nil
}
