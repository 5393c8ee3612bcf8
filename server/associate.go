package server

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"socks5core/pkg/addr"
	"socks5core/pkg/netio"
	"socks5core/pkg/watchdog"
	"socks5core/pkg/wire"
)

// endpoint is the IP+port pair the UDP relay engine pins the client to. A
// zero port means "any port from that IP".
type endpoint struct {
	ip   netip.Addr
	port uint16
}

// handleAssociate opens a proxy-side UDP socket, announces it, and runs
// the UDP relay engine for the session's lifetime.
func (s *Server) handleAssociate(clientTCP net.Conn, req wire.Request) {
	expected, err := s.expectedClientEndpoint(clientTCP, req.Dest)
	if err != nil {
		s.logger.ErrorMsg("UDP ASSOCIATE: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(clientTCP)
		return
	}

	proxyUDP, err := s.udpListener("udp", net.JoinHostPort(s.cfg.ListenerIP, "0"))
	if err != nil {
		s.logger.ErrorMsg("UDP ASSOCIATE: opening proxy socket: %s", err)
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(clientTCP)
		return
	}

	boundEP, err := addr.FromNetAddr(proxyUDP.LocalAddr())
	if err != nil {
		s.logger.ErrorMsg("UDP ASSOCIATE: resolving bound endpoint: %s", err)
		proxyUDP.Close()
		(wire.Reply{Rep: wire.RepGeneralFailure, Bound: addr.Zero(req.Dest.Type())}).Write(clientTCP)
		return
	}

	if err := (wire.Reply{Rep: wire.RepSuccess, Bound: boundEP}).Write(clientTCP); err != nil {
		s.logger.ErrorMsg("UDP ASSOCIATE: writing reply: %s", err)
		proxyUDP.Close()
		return
	}

	if s.udpHandler != nil {
		s.udpHandler(clientTCP, proxyUDP)
		return
	}

	sess := &udpSession{
		server:    s,
		clientTCP: clientTCP,
		proxyUDP:  proxyUDP,
		expected:  expected,
		targets:   make(map[string]*udpTarget),
	}
	sess.run()
}

// expectedClientEndpoint computes the client's expected UDP sender: a
// zeroed request IP is substituted by the TCP peer's IP with port 0 ("any
// port"); otherwise the request's own address is resolved.
func (s *Server) expectedClientEndpoint(clientTCP net.Conn, dest addr.Addr) (endpoint, error) {
	if dest.IsZeroIP() {
		ip, err := localIPOf(tcpPeer{clientTCP})
		if err != nil {
			return endpoint{}, err
		}
		return endpoint{ip: ip, port: 0}, nil
	}

	if ip, ok := dest.IP(); ok {
		return endpoint{ip: ip.Unmap(), port: dest.Port()}, nil
	}

	domain, _ := dest.Domain()
	eps, err := netio.Resolve(context.Background(), domain, dest.Port())
	if err != nil {
		return endpoint{}, fmt.Errorf("server: resolving UDP ASSOCIATE domain %q: %w", domain, err)
	}
	return endpoint{ip: eps[0].Addr(), port: dest.Port()}, nil
}

// tcpPeer adapts net.Conn.RemoteAddr to the same TCPAddr-typed local-address
// shape localIPOf expects, so the two can share one helper.
type tcpPeer struct{ net.Conn }

func (p tcpPeer) LocalAddr() net.Addr { return p.Conn.RemoteAddr() }

// udpTarget is one resolved relay destination: the proxy-local socket
// dedicated to it and the per-target return task reading from it.
type udpTarget struct {
	conn net.PacketConn
	ep   *net.UDPAddr
	addr addr.Addr
}

// udpSession holds the mutable state of one UDP ASSOCIATE relay.
type udpSession struct {
	server    *Server
	clientTCP net.Conn
	proxyUDP  net.PacketConn

	mu       sync.Mutex
	expected endpoint
	clientEP *net.UDPAddr
	targets  map[string]*udpTarget

	wd *watchdog.Watchdog
}

// run drives the three cooperating tasks (ProcessTcp liveness watch,
// ProcessUdp receive/dispatch loop, and the per-target return tasks
// ProcessUdp spawns) until any of them ends the session.
func (sess *udpSession) run() {
	sess.wd = watchdog.New(sess.server.cfg.UDPRelayTimeout)
	go sess.wd.Run()
	defer sess.wd.Stop()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			sess.clientTCP.Close()
			sess.proxyUDP.Close()
		})
	}
	go func() {
		<-sess.wd.Done()
		stop()
	}()

	go func() {
		sess.processTCP()
		stop()
	}()

	sess.processUDP(stop)
	stop()
	sess.closeTargets()
}

// processTCP keeps reading the control connection purely as a liveness
// check: its close or error ends the association.
func (sess *udpSession) processTCP() {
	buf := make([]byte, 4096)
	for {
		n, err := sess.clientTCP.Read(buf)
		if n > 0 {
			sess.wd.Update()
		}
		if err != nil {
			return
		}
	}
}

// processUDP receives datagrams from the client, verifies and pins the
// sender, and dispatches each payload to its requested target.
func (sess *udpSession) processUDP(stop func()) {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := sess.proxyUDP.ReadFrom(buf)
		if err != nil {
			return
		}
		sess.wd.Update()
		sess.server.metrics.AddRecv(uint64(n))

		udpAddr, ok := src.(*net.UDPAddr)
		if !ok || !sess.acceptSender(udpAddr) {
			continue
		}

		hdr, payload, err := wire.ParseDatagram(buf[:n])
		if err != nil || len(payload) == 0 {
			continue
		}

		target, err := sess.getOrCreateTarget(hdr.Dest)
		if err != nil {
			sess.server.logger.ErrorMsg("UDP ASSOCIATE: resolving target %s: %s", hdr.Dest, err)
			stop()
			return
		}

		clientEP, _ := addr.FromNetAddr(udpAddr)
		sess.sendToTarget(target, clientEP, payload)
	}
}

// acceptSender verifies a datagram's sender against expected_client_ep and,
// on the first accepted datagram, pins client_ep for the rest of the
// session.
func (sess *udpSession) acceptSender(a *net.UDPAddr) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.clientEP != nil {
		return a.IP.Equal(sess.clientEP.IP) && a.Port == sess.clientEP.Port
	}

	ip, ok := netip.AddrFromSlice(a.IP)
	if !ok || ip.Unmap() != sess.expected.ip {
		return false
	}
	if sess.expected.port != 0 && uint16(a.Port) != sess.expected.port {
		return false
	}

	sess.clientEP = a
	sess.expected = endpoint{ip: ip.Unmap(), port: uint16(a.Port)}
	return true
}

func (sess *udpSession) sendToTarget(target *udpTarget, clientEP addr.Addr, payload []byte) {
	send := func(b []byte) {
		if _, err := target.conn.WriteTo(b, target.ep); err != nil {
			return
		}
		sess.wd.Update()
		sess.server.metrics.AddSent(uint64(len(b)))
	}

	if p := sess.server.udpProcessor; p != nil && p.ClientToServer != nil {
		p.ClientToServer(clientEP, payload, send)
		return
	}
	send(payload)
}

// getOrCreateTarget returns the relay socket for dest, opening one and
// spawning its return task on first use.
func (sess *udpSession) getOrCreateTarget(dest addr.Addr) (*udpTarget, error) {
	key := dest.HostPort()

	sess.mu.Lock()
	if t, ok := sess.targets[key]; ok {
		sess.mu.Unlock()
		return t, nil
	}
	sess.mu.Unlock()

	udpEP, err := resolveUDPAddr(dest)
	if err != nil {
		return nil, err
	}

	conn, err := sess.server.udpListener("udp", net.JoinHostPort(sess.server.cfg.ListenerIP, "0"))
	if err != nil {
		return nil, fmt.Errorf("opening target socket: %w", err)
	}

	t := &udpTarget{conn: conn, ep: udpEP, addr: dest}

	sess.mu.Lock()
	if existing, ok := sess.targets[key]; ok {
		sess.mu.Unlock()
		conn.Close()
		return existing, nil
	}
	sess.targets[key] = t
	sess.mu.Unlock()

	go sess.returnTask(t)
	return t, nil
}

// returnTask relays datagrams arriving from one target back to the pinned
// client endpoint, encoding each with a SOCKS5 UDP header naming the
// target's own address.
func (sess *udpSession) returnTask(t *udpTarget) {
	buf := make([]byte, wire.MaxDatagramSize)
	for {
		n, src, err := t.conn.ReadFrom(buf)
		if err != nil {
			sess.proxyUDP.Close()
			return
		}
		if udpSrc, ok := src.(*net.UDPAddr); !ok || !udpSrc.IP.Equal(t.ep.IP) || udpSrc.Port != t.ep.Port {
			continue
		}
		sess.wd.Update()
		sess.server.metrics.AddRecv(uint64(n))

		payload := buf[:n]
		sess.mu.Lock()
		clientEP := sess.clientEP
		sess.mu.Unlock()
		if clientEP == nil {
			continue
		}

		send := func(b []byte) {
			out, err := wire.BuildDatagram(wire.DatagramHeader{Dest: t.addr}, b)
			if err != nil {
				return
			}
			if _, err := sess.proxyUDP.WriteTo(out, clientEP); err != nil {
				sess.proxyUDP.Close()
				return
			}
			sess.wd.Update()
			sess.server.metrics.AddSent(uint64(len(out)))
		}

		targetEP, _ := addr.FromNetAddr(t.ep)
		clientEPAddr, _ := addr.FromNetAddr(clientEP)
		if p := sess.server.udpProcessor; p != nil && p.ServerToClient != nil {
			p.ServerToClient(clientEPAddr, targetEP, payload, send)
			continue
		}
		send(payload)
	}
}

func (sess *udpSession) closeTargets() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	for _, t := range sess.targets {
		t.conn.Close()
	}
}

// resolveUDPAddr converts a request address into a concrete *net.UDPAddr,
// resolving a domain if necessary.
func resolveUDPAddr(a addr.Addr) (*net.UDPAddr, error) {
	if ip, ok := a.IP(); ok {
		return &net.UDPAddr{IP: net.IP(ip.AsSlice()), Port: int(a.Port())}, nil
	}
	domain, _ := a.Domain()
	eps, err := netio.Resolve(context.Background(), domain, a.Port())
	if err != nil {
		return nil, err
	}
	return net.UDPAddrFromAddrPort(eps[0]), nil
}
