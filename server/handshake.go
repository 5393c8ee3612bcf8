package server

import (
	"errors"
	"net"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

// handleSession drives one client connection through the handshake state
// machine (greeting, optional USER subnegotiation, request) under
// HandshakeTimeout, then dispatches to the matching command handler.
func (s *Server) handleSession(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.HandshakeTimeout)); err != nil {
		s.logger.ErrorMsg("session %s: setting handshake deadline: %s", conn.RemoteAddr(), err)
		return
	}

	greeting, err := wire.ReadClientGreeting(conn)
	if err != nil {
		s.logger.ErrorMsg("session %s: reading greeting: %s", conn.RemoteAddr(), err)
		return
	}

	method := s.chooseMethod(greeting)
	if err := (wire.ServerChoice{Method: method}).Write(conn); err != nil {
		s.logger.ErrorMsg("session %s: writing method choice: %s", conn.RemoteAddr(), err)
		return
	}

	if method == wire.MethodUser {
		ok, err := s.authenticate(conn)
		if err != nil {
			s.logger.ErrorMsg("session %s: user auth: %s", conn.RemoteAddr(), err)
			return
		}
		if !ok {
			s.logger.VerboseMsg("session %s: user auth rejected", conn.RemoteAddr())
			return
		}
	}

	req, err := wire.ReadRequest(conn)
	if err != nil {
		switch {
		case errors.Is(err, wire.ErrCommandNotSupported):
			reply := wire.Reply{Rep: wire.RepCommandNotSupported, Bound: addr.Zero(req.Dest.Type())}
			if werr := reply.Write(conn); werr != nil {
				s.logger.ErrorMsg("session %s: writing command-not-supported reply: %s", conn.RemoteAddr(), werr)
			}
		case errors.Is(err, addr.ErrAddressTypeNotSupported):
			reply := wire.Reply{Rep: wire.RepAddressTypeNotSupported, Bound: addr.Zero(addr.IPv4)}
			if werr := reply.Write(conn); werr != nil {
				s.logger.ErrorMsg("session %s: writing address-type-not-supported reply: %s", conn.RemoteAddr(), werr)
			}
		default:
			s.logger.ErrorMsg("session %s: reading request: %s", conn.RemoteAddr(), err)
		}
		return
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		s.logger.ErrorMsg("session %s: clearing handshake deadline: %s", conn.RemoteAddr(), err)
		return
	}

	switch req.Cmd {
	case wire.CmdConnect:
		s.handleConnect(conn, req)
	case wire.CmdBind:
		s.handleBind(conn, req)
	case wire.CmdAssociate:
		s.handleAssociate(conn, req)
	}
}

// chooseMethod picks User only when user auth is enabled and the client
// offers it; everything else falls back to None, regardless of what else
// the greeting advertises.
func (s *Server) chooseMethod(g wire.ClientGreeting) wire.Method {
	if s.cfg.EnableUserAuth && g.Supports(wire.MethodUser) {
		return wire.MethodUser
	}
	return wire.MethodNone
}

// authenticate runs the RFC 1929 USER subnegotiation. A false return (with
// a nil error) means the credentials were rejected and UserAuthResponse
// already carries status=failure; per RFC 1928's tolerance requirement the
// caller terminates the session silently rather than sending anything
// further.
func (s *Server) authenticate(conn net.Conn) (bool, error) {
	req, err := wire.ReadUserAuthRequest(conn)
	if err != nil {
		return false, err
	}

	ok := s.authCallback != nil && s.authCallback(req.Username, req.Password)

	status := wire.UserAuthSuccess
	if !ok {
		status = wire.UserAuthFailure
	}
	if err := (wire.UserAuthResponse{Status: status}).Write(conn); err != nil {
		return false, err
	}
	return ok, nil
}
