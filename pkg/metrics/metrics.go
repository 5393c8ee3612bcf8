// Package metrics tracks total bytes received from and sent to relayed
// peers: a plain atomic pair, exposed through a small named type instead
// of bare package variables so a Server can own one independently of any
// other.
package metrics

import "sync/atomic"

// Counters holds the running totals for one Server instance.
type Counters struct {
	recvBytesTotal uint64
	sentBytesTotal uint64
}

// AddRecv adds n to the received-bytes counter.
func (c *Counters) AddRecv(n uint64) {
	atomic.AddUint64(&c.recvBytesTotal, n)
}

// AddSent adds n to the sent-bytes counter.
func (c *Counters) AddSent(n uint64) {
	atomic.AddUint64(&c.sentBytesTotal, n)
}

// RecvBytesTotal returns the current received-bytes total.
func (c *Counters) RecvBytesTotal() uint64 {
	return atomic.LoadUint64(&c.recvBytesTotal)
}

// SentBytesTotal returns the current sent-bytes total.
func (c *Counters) SentBytesTotal() uint64 {
	return atomic.LoadUint64(&c.sentBytesTotal)
}

// Reset zeroes both counters.
func (c *Counters) Reset() {
	atomic.StoreUint64(&c.recvBytesTotal, 0)
	atomic.StoreUint64(&c.sentBytesTotal, 0)
}
