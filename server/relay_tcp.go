package server

import (
	"context"
	"net"

	"socks5core/pkg/addr"
	"socks5core/pkg/netio"
	"socks5core/pkg/pipeio"
	"socks5core/pkg/watchdog"
)

// relayBufSize is how much one relay direction reads per ReadSome call.
const relayBufSize = 16384

// relayConn adapts a netio.Conn's timed ReadSome/Send to the plain
// io.ReadWriteCloser shape the splice path (pipeio.Pipe) and the processor
// pump both want, and resets the shared watchdog on every byte moved in
// either direction. Per-call
// timeouts are left at zero: idle detection is the watchdog's job, and an
// in-flight read is unblocked by Cancel, not by a per-call deadline.
type relayConn struct {
	*netio.Conn
	wd *watchdog.Watchdog
}

func (c relayConn) Read(p []byte) (int, error) {
	n, err := c.ReadSome(p, 0)
	if n > 0 {
		c.wd.Update()
	}
	return n, err
}

func (c relayConn) Write(p []byte) (int, error) {
	n, err := c.Send(p, 0)
	if n > 0 {
		c.wd.Update()
	}
	return n, err
}

// relayTCP moves bytes between client and target once a CONNECT/BIND
// session's sockets are established. Closing both sockets is this
// function's responsibility from the point it is called. A
// WithTCPHandler installation bypasses everything below it; otherwise the
// built-in splice relay runs, optionally filtered through a
// WithTCPProcessor.
func (s *Server) relayTCP(client, target net.Conn, targetEP, localEP addr.Addr) {
	if s.tcpHandler != nil {
		defer client.Close()
		defer target.Close()
		s.tcpHandler(client, target)
		return
	}

	clientEP, err := addr.FromNetAddr(client.RemoteAddr())
	if err != nil {
		clientEP = addr.Zero(targetEP.Type())
	}

	ncClient, err := netio.New(client, &s.metrics)
	if err != nil {
		s.logger.ErrorMsg("TCP relay %s<->%s: wrapping client socket: %s", clientEP.HostPort(), targetEP.HostPort(), err)
		client.Close()
		target.Close()
		return
	}
	ncTarget, err := netio.New(target, &s.metrics)
	if err != nil {
		s.logger.ErrorMsg("TCP relay %s<->%s: wrapping target socket: %s", clientEP.HostPort(), targetEP.HostPort(), err)
		ncClient.Close()
		target.Close()
		return
	}

	wd := watchdog.New(s.cfg.TCPRelayTimeout)
	go wd.Run()
	defer wd.Stop()

	// Cancel unblocks whichever side is stalled in a read on a connection
	// that honors read deadlines; the close behind it covers connections
	// that do not. Done closes on idle expiry or, failing that, via the
	// deferred Stop, by which time both conns are already down and this
	// pass is a no-op.
	go func() {
		<-wd.Done()
		ncClient.Cancel()
		ncTarget.Cancel()
		ncClient.Stop()
		ncTarget.Stop()
	}()

	rClient := relayConn{Conn: ncClient, wd: wd}
	rTarget := relayConn{Conn: ncTarget, wd: wd}

	if s.tcpProcessor == nil {
		pipeio.Pipe(context.Background(), rClient, rTarget, func(err error) {
			s.logger.ErrorMsg("TCP relay %s<->%s: %s", clientEP.HostPort(), targetEP.HostPort(), err)
		})
		return
	}

	done := make(chan struct{}, 2)
	go func() {
		s.pumpProcessed(rClient, rTarget, clientEP, targetEP)
		done <- struct{}{}
	}()
	go func() {
		s.pumpProcessed(rTarget, rClient, targetEP, clientEP)
		done <- struct{}{}
	}()
	<-done
	ncClient.Close()
	ncTarget.Close()
	<-done
}

// pumpProcessed reads from "from", runs each chunk through the installed
// TCPRelayDataProcessor, and flushes every sink call to "to" in the order
// the processor made them. A watchdog expiry
// reaches this loop through Cancel (wired above), which makes the
// blocked from.Read return an error instead of needing its own
// ctx-polling between reads.
func (s *Server) pumpProcessed(from, to relayConn, fromEP, toEP addr.Addr) {
	buf := make([]byte, relayBufSize)
	for {
		n, err := from.Read(buf)
		if n > 0 {
			var queued [][]byte
			sink := func(b []byte) {
				cp := make([]byte, len(b))
				copy(cp, b)
				queued = append(queued, cp)
			}
			s.tcpProcessor(fromEP, toEP, buf[:n], sink)
			for _, b := range queued {
				if _, werr := to.Write(b); werr != nil {
					return
				}
			}
		}
		if err != nil {
			return
		}
	}
}
