package server

import (
	"net"

	"socks5core/pkg/addr"
)

// UserAuthCallback validates USER subnegotiation credentials. Returning
// false fails the handshake; the server then sends UserAuthResponse with
// status=failure and closes silently (RFC 1928's tolerance requirement).
type UserAuthCallback func(username, password string) bool

// SendSink is handed to a TCPRelayDataProcessor/UDPRelayDataProcessor; it
// may be called zero or more times per invocation, and the peer receives
// the calls' bytes in the order they were made. The TCP engine queues the
// calls and flushes them once the processor returns; the UDP engine sends
// each call's bytes as a datagram as soon as the call is made.
type SendSink func(b []byte)

// TCPRelayHandler takes full control of an accepted CONNECT/BIND session,
// receiving both raw sockets. The engine does not touch either socket
// while the handler runs; returning ends the session, and the engine then
// closes both.
type TCPRelayHandler func(client, target net.Conn)

// TCPRelayDataProcessor intercepts one direction's payload on top of the
// built-in splice relay. fromEP/toEP name the direction; data is the
// bytes just read (never retained past the call); sink emits bytes to
// toEP in call order.
type TCPRelayDataProcessor func(fromEP, toEP addr.Addr, data []byte, sink SendSink)

// UDPRelayHandler takes full control of an ASSOCIATE session, receiving
// the client-facing TCP control connection and the proxy-side UDP socket.
type UDPRelayHandler func(clientTCP net.Conn, proxyUDP net.PacketConn)

// UDPRelayDataProcessor intercepts one direction's datagram payload.
// clientToServer carries the pinned client endpoint the datagram came from;
// serverToClient additionally carries the target endpoint the payload
// came from.
type UDPRelayDataProcessor struct {
	ClientToServer func(clientEP addr.Addr, data []byte, sink SendSink)
	ServerToClient func(clientEP, targetEP addr.Addr, data []byte, sink SendSink)
}
