package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"socks5core/pkg/log"
	"socks5core/pkg/metrics"
	"socks5core/pkg/netio"
	"socks5core/pkg/semaphore"
)

// Server terminates SOCKS5 on a listener, per Config, per the extension
// seams installed via Builder. Build one with NewBuilder(...).Build().
type Server struct {
	cfg Config

	authCallback UserAuthCallback
	logger       log.Logger

	tcpHandler   TCPRelayHandler
	tcpProcessor TCPRelayDataProcessor
	udpHandler   UDPRelayHandler
	udpProcessor *UDPRelayDataProcessor

	tcpDialer   netio.TCPDialerFunc
	tcpListener netio.TCPListenerFunc
	udpListener netio.UDPListenerFunc

	metrics metrics.Counters

	mu       sync.Mutex
	ln       net.Listener
	running  bool
	stopCh   chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once
	wg       sync.WaitGroup

	stopped atomic.Bool
}

// Run binds the listener and starts accepting sessions, each spawned onto
// the worker pool Config.Threads bounds. Run is idempotent: calling it
// again while already running first Waits for the prior run to drain.
func (s *Server) Run() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.Wait()
		s.mu.Lock()
	}

	ln, err := s.tcpListener("tcp", s.cfg.ListenAddress())
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddress(), err)
	}

	s.metrics.Reset()
	s.ln = ln
	s.running = true
	s.stopCh = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.stopOnce = sync.Once{}
	s.stopped.Store(false)
	s.mu.Unlock()

	s.logger.InfoMsg("listening on %s", s.cfg.ListenAddress())

	sem := semaphore.New(s.cfg.Threads, s.cfg.HandshakeTimeout)

	s.wg.Add(1)
	go s.acceptLoop(ln, sem)
	return nil
}

func (s *Server) acceptLoop(ln net.Listener, sem *semaphore.Semaphore) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				return
			default:
				s.logger.ErrorMsg("accept: %s", err)
				return
			}
		}

		if s.cfg.TCPNoDelay {
			if tc, ok := conn.(*net.TCPConn); ok {
				tc.SetNoDelay(true)
			}
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := sem.Acquire(s.ctx); err != nil {
				s.logger.ErrorMsg("acquiring worker slot: %s", err)
				conn.Close()
				return
			}
			defer sem.Release()

			s.handleSession(conn)
		}()
	}
}

// Wait blocks until the accept loop and every in-flight session have
// returned.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Stop closes the listener, ending the accept loop, and signals every
// in-flight session to wind down. It does not block for sessions to
// finish; call Wait for that.
func (s *Server) Stop() {
	s.mu.Lock()
	ln := s.ln
	stopCh := s.stopCh
	cancel := s.cancel
	s.running = false
	s.mu.Unlock()

	s.stopOnce.Do(func() {
		if stopCh != nil {
			close(stopCh)
		}
		if cancel != nil {
			cancel()
		}
	})
	if ln != nil {
		ln.Close()
	}
	s.stopped.Store(true)
}

// Stopped reports whether Stop has been called.
func (s *Server) Stopped() bool {
	return s.stopped.Load()
}

// GetRecvBytesTotal returns the running total of bytes received from
// relayed peers since the last Run.
func (s *Server) GetRecvBytesTotal() uint64 {
	return s.metrics.RecvBytesTotal()
}

// GetSentBytesTotal returns the running total of bytes sent to relayed
// peers since the last Run.
func (s *Server) GetSentBytesTotal() uint64 {
	return s.metrics.SentBytesTotal()
}
