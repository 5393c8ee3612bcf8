package server

import (
	"context"
	"net"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

// handleConnect dials the requested destination and relays bytes between
// the client and it. A dial failure is mapped to a
// REP code via repForDialError and echoed with a zero address of the
// request's ATYP.
func (s *Server) handleConnect(client net.Conn, req wire.Request) {
	target, err := s.tcpDialer(context.Background(), "tcp", req.Dest.HostPort())
	if err != nil {
		s.logger.ErrorMsg("CONNECT %s: dial failed: %s", req.Dest.HostPort(), err)
		reply := wire.Reply{Rep: repForDialError(err), Bound: addr.Zero(req.Dest.Type())}
		if werr := reply.Write(client); werr != nil {
			s.logger.ErrorMsg("CONNECT %s: writing failure reply: %s", req.Dest.HostPort(), werr)
		}
		return
	}
	bound, err := addr.FromNetAddr(target.LocalAddr())
	if err != nil {
		s.logger.ErrorMsg("CONNECT %s: resolving bound endpoint: %s", req.Dest.HostPort(), err)
		reply := wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}
		reply.Write(client)
		target.Close()
		return
	}

	reply := wire.Reply{Rep: wire.RepSuccess, Bound: bound}
	if err := reply.Write(client); err != nil {
		s.logger.ErrorMsg("CONNECT %s: writing success reply: %s", req.Dest.HostPort(), err)
		target.Close()
		return
	}

	// relayTCP owns closing both sockets from here on.
	s.relayTCP(client, target, req.Dest, bound)
}
