package netio

import (
	"context"
	"net"
)

// TCPListenerFunc opens a listening socket; tests substitute a fake to
// avoid binding a real port.
type TCPListenerFunc func(network, address string) (net.Listener, error)

// DefaultTCPListener opens a TCP listener with SO_REUSEADDR set on the
// underlying socket (see sockopt_linux.go / sockopt_other.go), so a server
// restart does not have to wait out TIME_WAIT on the old listener.
func DefaultTCPListener() TCPListenerFunc {
	lc := net.ListenConfig{Control: setSocketOptions}
	return func(network, address string) (net.Listener, error) {
		return lc.Listen(context.Background(), network, address)
	}
}
