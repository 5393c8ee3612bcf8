package netio

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/muesli/cancelreader"

	"socks5core/pkg/metrics"
)

func TestConnReadExactCountsBytes(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var counters metrics.Counters
	c, err := New(server, &counters)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	go client.Write([]byte("hello!"))

	buf := make([]byte, 6)
	n, err := c.ReadExact(buf, time.Second)
	if err != nil {
		t.Fatalf("ReadExact() error = %v", err)
	}
	if n != 6 || string(buf) != "hello!" {
		t.Errorf("ReadExact() = (%d, %q), want (6, %q)", n, buf, "hello!")
	}
	if got := counters.RecvBytesTotal(); got != 6 {
		t.Errorf("RecvBytesTotal() = %d, want 6", got)
	}
}

func TestConnSendCountsBytes(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	var counters metrics.Counters
	c, err := New(server, &counters)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	done := make(chan []byte)
	go func() {
		buf := make([]byte, 4)
		n, _ := client.Read(buf)
		done <- buf[:n]
	}()

	n, err := c.Send([]byte("ping"), time.Second)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if n != 4 {
		t.Errorf("Send() = %d, want 4", n)
	}
	if got := <-done; string(got) != "ping" {
		t.Errorf("peer received %q, want %q", got, "ping")
	}
	if got := counters.SentBytesTotal(); got != 4 {
		t.Errorf("SentBytesTotal() = %d, want 4", got)
	}
}

func TestConnCancelUnblocksRead(t *testing.T) {
	t.Parallel()

	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	c, err := New(server, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer c.Close()

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := c.ReadSome(buf, 0)
		readErr <- err
	}()

	time.Sleep(20 * time.Millisecond)
	c.Cancel()

	select {
	case err := <-readErr:
		if !errors.Is(err, cancelreader.ErrCanceled) {
			t.Errorf("ReadSome() error = %v, want cancelreader.ErrCanceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Cancel() did not unblock ReadSome()")
	}
}

func TestDefaultDialerAndListener(t *testing.T) {
	t.Parallel()

	ln, err := DefaultTCPListener()("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("DefaultTCPListener() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	conn, err := DefaultTCPDialer()(context.Background(), "tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("DefaultTCPDialer() error = %v", err)
	}
	defer conn.Close()

	select {
	case server := <-accepted:
		server.Close()
	case <-time.After(time.Second):
		t.Fatal("listener never accepted the dial")
	}
}

func TestConnStopUnblocksPeerRead(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("net.Dial() error = %v", err)
	}

	var peer net.Conn
	select {
	case peer = <-accepted:
	case <-time.After(time.Second):
		t.Fatal("listener never accepted the dial")
	}
	defer peer.Close()

	c, err := New(dialed, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		_, err := peer.Read(buf)
		readErr <- err
	}()

	c.Stop()

	select {
	case err := <-readErr:
		if err == nil {
			t.Error("peer Read() = nil error after Stop, want EOF")
		}
	case <-time.After(time.Second):
		t.Fatal("Stop() did not unblock the peer's read")
	}
}
