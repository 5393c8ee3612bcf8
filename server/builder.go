package server

import (
	"time"

	"socks5core/pkg/log"
	"socks5core/pkg/netio"
)

// Builder assembles a Config plus extension seams into a Server. Each
// relay direction has two explicit extension points: WithTCPHandler takes
// over the session's sockets entirely, WithTCPProcessor intercepts payloads
// on top of the built-in relay, and leaving both unset selects the raw
// splice. Mirrored for UDP.
type Builder struct {
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
}

// NewBuilder starts a Builder bound to the given listener address, with
// sane defaults: a 1-worker thread pool, a 30s handshake timeout, and 5m
// TCP and UDP relay idle timeouts, all overridable before Build.
func NewBuilder(listenerIP string, listenerPort int) *Builder {
	return &Builder{
		cfg: Config{
			ListenerIP:       listenerIP,
			ListenerPort:     listenerPort,
			Threads:          1,
			HandshakeTimeout: 30 * time.Second,
			TCPRelayTimeout:  5 * time.Minute,
			UDPRelayTimeout:  5 * time.Minute,
		},
		logger:      log.NewColorLogger(false),
		tcpDialer:   netio.DefaultTCPDialer(),
		tcpListener: netio.DefaultTCPListener(),
		udpListener: netio.DefaultUDPListener(),
	}
}

// SetHandshakeTimeout overrides the handshake stage timeout.
func (b *Builder) SetHandshakeTimeout(d time.Duration) *Builder {
	b.cfg.HandshakeTimeout = d
	return b
}

// SetTCPRelayTimeout overrides the TCP relay idle-watchdog interval.
func (b *Builder) SetTCPRelayTimeout(d time.Duration) *Builder {
	b.cfg.TCPRelayTimeout = d
	return b
}

// SetUDPRelayTimeout overrides the UDP relay idle-watchdog interval.
func (b *Builder) SetUDPRelayTimeout(d time.Duration) *Builder {
	b.cfg.UDPRelayTimeout = d
	return b
}

// SetUserAuthCallback installs the USER subnegotiation validator. Has no
// effect unless EnableUserAuth is also called.
func (b *Builder) SetUserAuthCallback(cb UserAuthCallback) *Builder {
	b.authCallback = cb
	return b
}

// SetAuth stores a fixed username/password pair and installs a callback
// that checks against it, for callers who don't need a custom validator.
func (b *Builder) SetAuth(username, password string) *Builder {
	b.cfg.AuthUsername = username
	b.cfg.AuthPassword = password
	b.authCallback = func(u, p string) bool { return u == username && p == password }
	return b
}

// SetListener rebinds the listener endpoint set by NewBuilder.
func (b *Builder) SetListener(ip string, port int) *Builder {
	b.cfg.ListenerIP = ip
	b.cfg.ListenerPort = port
	return b
}

// SetThreadsNum overrides the worker pool size backing Config.Threads.
func (b *Builder) SetThreadsNum(n int) *Builder {
	b.cfg.Threads = n
	return b
}

// EnableUserAuth makes the handshake choose the USER method whenever the
// client's greeting offers it; a greeting without USER still gets None.
func (b *Builder) EnableUserAuth() *Builder {
	b.cfg.EnableUserAuth = true
	return b
}

// EnableTCPNoDelay sets TCP_NODELAY on every accepted client socket.
func (b *Builder) EnableTCPNoDelay() *Builder {
	b.cfg.TCPNoDelay = true
	return b
}

// SetLogger overrides the default color logger.
func (b *Builder) SetLogger(l log.Logger) *Builder {
	b.logger = l
	return b
}

// SetBindValidateAcceptedConn enables BIND's stricter accept-side check.
func (b *Builder) SetBindValidateAcceptedConn(v bool) *Builder {
	b.cfg.BindValidateAcceptedConn = v
	return b
}

// WithTCPHandler installs a relay handler with full control over an
// accepted CONNECT/BIND session's sockets, bypassing the built-in relay.
func (b *Builder) WithTCPHandler(h TCPRelayHandler) *Builder {
	b.tcpHandler = h
	return b
}

// WithTCPProcessor installs a data processor on top of the built-in TCP
// splice relay.
func (b *Builder) WithTCPProcessor(p TCPRelayDataProcessor) *Builder {
	b.tcpProcessor = p
	return b
}

// WithUDPHandler installs a relay handler with full control over an
// ASSOCIATE session's sockets, bypassing the built-in UDP relay.
func (b *Builder) WithUDPHandler(h UDPRelayHandler) *Builder {
	b.udpHandler = h
	return b
}

// WithUDPProcessor installs a data processor on top of the built-in UDP
// relay.
func (b *Builder) WithUDPProcessor(p UDPRelayDataProcessor) *Builder {
	b.udpProcessor = &p
	return b
}

// Build validates the accumulated Config and returns a Server ready to
// Run. Neither WithTCPHandler/WithTCPProcessor nor their UDP equivalents
// are required: default_tcp/default_udp (the built-in splice relay) is
// used when neither is set.
func (b *Builder) Build() (*Server, error) {
	// An installed callback stands in for the fixed auth_username that
	// Validate otherwise requires when user auth is enabled.
	cfg := b.cfg
	if b.authCallback != nil {
		cfg.EnableUserAuth = false
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, errs[0]
	}
	if b.cfg.EnableUserAuth && b.authCallback == nil {
		return nil, errAuthEnabledWithoutCallback
	}

	return &Server{
		cfg:          b.cfg,
		authCallback: b.authCallback,
		logger:       b.logger,
		tcpHandler:   b.tcpHandler,
		tcpProcessor: b.tcpProcessor,
		udpHandler:   b.udpHandler,
		udpProcessor: b.udpProcessor,
		tcpDialer:    b.tcpDialer,
		tcpListener:  b.tcpListener,
		udpListener:  b.udpListener,
		stopCh:       make(chan struct{}),
	}, nil
}
