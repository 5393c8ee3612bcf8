package netio

import (
	"io"
	"net"
	"time"

	"github.com/muesli/cancelreader"

	"socks5core/pkg/metrics"
)

// Conn wraps a net.Conn with a cancelable reader, so a watchdog can
// unblock an in-flight read, and a shared Counters so every byte moved
// across it is tallied, on both the success and the partial-progress
// error path.
type Conn struct {
	nc       net.Conn
	cr       cancelreader.CancelReader
	counters *metrics.Counters
}

// New wraps nc. counters may be nil, in which case bytes moved are not
// tallied (useful in tests that don't care about metrics).
func New(nc net.Conn, counters *metrics.Counters) (*Conn, error) {
	cr, err := cancelreader.NewReader(nc)
	if err != nil {
		return nil, err
	}
	return &Conn{nc: nc, cr: cr, counters: counters}, nil
}

// Cancel unblocks any in-flight Read/ReadExact/ReadSome, making it return
// cancelreader.ErrCanceled. Called by a watchdog on idle-timeout expiry.
func (c *Conn) Cancel() bool {
	ok := c.cr.Cancel()
	// A plain net.Conn gets cancelreader's fallback reader, whose Cancel
	// does not interrupt a Read already blocked in the socket; expiring the
	// read deadline does, and the reader then reports ErrCanceled.
	c.nc.SetReadDeadline(time.Now())
	return ok
}

// Close closes the cancelable reader and the underlying connection.
func (c *Conn) Close() error {
	c.cr.Close()
	return c.nc.Close()
}

// Stop tears the connection down best-effort: half-close the write side
// when the underlying connection supports it, then close. All errors are
// swallowed; there is nothing useful a caller can do with a failed
// shutdown of a connection it is abandoning anyway.
func (c *Conn) Stop() {
	if tc, ok := c.nc.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
	c.Close()
}

// LocalAddr returns the underlying connection's local address.
func (c *Conn) LocalAddr() net.Addr { return c.nc.LocalAddr() }

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

func (c *Conn) addRecv(n int) {
	if c.counters != nil && n > 0 {
		c.counters.AddRecv(uint64(n))
	}
}

func (c *Conn) addSent(n int) {
	if c.counters != nil && n > 0 {
		c.counters.AddSent(uint64(n))
	}
}

// ReadExact fills p completely or returns an error, counting every byte
// actually read even when it returns short. A zero timeout means no
// deadline is set.
func (c *Conn) ReadExact(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		defer c.nc.SetReadDeadline(time.Time{})
	}

	n, err := io.ReadFull(c.cr, p)
	c.addRecv(n)
	return n, err
}

// ReadSome reads at least one byte into p and returns as soon as any data
// arrives, the same partial-read semantics as a single net.Conn.Read call.
func (c *Conn) ReadSome(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := c.nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		defer c.nc.SetReadDeadline(time.Time{})
	}

	n, err := c.cr.Read(p)
	c.addRecv(n)
	return n, err
}

// Send writes all of p, counting every byte actually written even when it
// returns short.
func (c *Conn) Send(p []byte, timeout time.Duration) (int, error) {
	if timeout > 0 {
		if err := c.nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return 0, err
		}
		defer c.nc.SetWriteDeadline(time.Time{})
	}

	n, err := c.nc.Write(p)
	c.addSent(n)
	return n, err
}
