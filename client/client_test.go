package client

import (
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"socks5core/pkg/addr"
	"socks5core/pkg/wire"
)

func TestAuthOptionsGreetingOrder(t *testing.T) {
	t.Parallel()

	userAuth, err := UserAuth("alice", "hunter2")
	if err != nil {
		t.Fatalf("UserAuth() error = %v", err)
	}
	opts, err := New(userAuth, NoneAuth())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	g := opts.greeting()
	if len(g.Methods) != 2 || g.Methods[0] != wire.MethodNone || g.Methods[1] != wire.MethodUser {
		t.Errorf("greeting methods = %v, want [None, User]", g.Methods)
	}
	if opts.Size() != 2 {
		t.Errorf("Size() = %d, want 2", opts.Size())
	}
}

func TestUserAuthRejectsOversizedFields(t *testing.T) {
	t.Parallel()

	long := make([]byte, MaxAuthFieldLen+1)
	if _, err := UserAuth(string(long), "x"); err == nil {
		t.Error("UserAuth() should reject an oversized username")
	}
}

func TestNewRejectsDuplicateMethods(t *testing.T) {
	t.Parallel()

	if _, err := New(NoneAuth(), NoneAuth()); err == nil {
		t.Error("New() should reject two None entries")
	}
}

// fakeProxy speaks just enough of the server side of the handshake over a
// net.Pipe to drive the client functions under test.
func fakeProxy(t *testing.T, conn net.Conn, reply wire.Reply, secondReply *wire.Reply) {
	t.Helper()
	go func() {
		greeting, err := wire.ReadClientGreeting(conn)
		if err != nil {
			return
		}
		choice := wire.ServerChoice{Method: wire.MethodNone}
		if greeting.Supports(wire.MethodUser) {
			choice.Method = wire.MethodUser
		}
		choice.Write(conn)

		if choice.Method == wire.MethodUser {
			if _, err := wire.ReadUserAuthRequest(conn); err != nil {
				return
			}
			wire.UserAuthResponse{Status: wire.UserAuthSuccess}.Write(conn)
		}

		if _, err := wire.ReadRequest(conn); err != nil {
			return
		}
		reply.Write(conn)

		if secondReply != nil {
			secondReply.Write(conn)
		}
	}()
}

func TestConnectSuccess(t *testing.T) {
	t.Parallel()

	server, proxy := net.Pipe()
	defer server.Close()

	bound := mustAddr(addr.FromIP(netip.MustParseAddr("198.51.100.1"), 4000))
	fakeProxy(t, proxy, wire.Reply{Rep: wire.RepSuccess, Bound: bound}, nil)

	opts, _ := New(NoneAuth())
	target := mustAddr(addr.FromIP(netip.MustParseAddr("93.184.216.34"), 80))

	got, err := Connect(server, opts, target, time.Second)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if got.HostPort() != bound.HostPort() {
		t.Errorf("Connect() bound = %v, want %v", got, bound)
	}
}

func TestConnectReplyError(t *testing.T) {
	t.Parallel()

	server, proxy := net.Pipe()
	defer server.Close()

	zero := mustAddr(addr.FromIP(netip.MustParseAddr("0.0.0.0"), 0))
	fakeProxy(t, proxy, wire.Reply{Rep: wire.RepHostUnreachable, Bound: zero}, nil)

	opts, _ := New(NoneAuth())
	target := mustAddr(addr.FromIP(netip.MustParseAddr("93.184.216.34"), 80))

	_, err := Connect(server, opts, target, time.Second)
	var replyErr *ReplyError
	if !errors.As(err, &replyErr) || replyErr.Rep != wire.RepHostUnreachable {
		t.Errorf("Connect() error = %v, want *ReplyError{Rep: HostUnreachable}", err)
	}
}

func TestAssociateSuccess(t *testing.T) {
	t.Parallel()

	server, proxy := net.Pipe()
	defer server.Close()

	bound := mustAddr(addr.FromIP(netip.MustParseAddr("127.0.0.1"), 9999))
	fakeProxy(t, proxy, wire.Reply{Rep: wire.RepSuccess, Bound: bound}, nil)

	opts, _ := New(NoneAuth())
	udpConn, proxyUDP, err := Associate(server, opts, time.Second)
	if err != nil {
		t.Fatalf("Associate() error = %v", err)
	}
	defer udpConn.Close()

	if proxyUDP.HostPort() != bound.HostPort() {
		t.Errorf("Associate() proxyUDP = %v, want %v", proxyUDP, bound)
	}
}

func TestBindTwoStepFlow(t *testing.T) {
	t.Parallel()

	server, proxy := net.Pipe()
	defer server.Close()

	first := wire.Reply{Rep: wire.RepSuccess, Bound: mustAddr(addr.FromIP(netip.MustParseAddr("203.0.113.9"), 5000))}
	second := wire.Reply{Rep: wire.RepSuccess, Bound: mustAddr(addr.FromIP(netip.MustParseAddr("198.51.100.2"), 5050))}
	fakeProxy(t, proxy, first, &second)

	opts, _ := New(NoneAuth())
	expected := mustAddr(addr.FromIP(netip.MustParseAddr("0.0.0.0"), 0))

	st, endpoint, err := FirstBindStep(server, opts, expected, time.Second)
	if err != nil {
		t.Fatalf("FirstBindStep() error = %v", err)
	}
	if endpoint.HostPort() != first.Bound.HostPort() {
		t.Errorf("FirstBindStep() endpoint = %v, want %v", endpoint, first.Bound)
	}

	peer, err := SecondBindStep(st, time.Second)
	if err != nil {
		t.Fatalf("SecondBindStep() error = %v", err)
	}
	if peer.HostPort() != second.Bound.HostPort() {
		t.Errorf("SecondBindStep() peer = %v, want %v", peer, second.Bound)
	}
}

func TestSendToAndReceiveFromRoundTrip(t *testing.T) {
	t.Parallel()

	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	defer serverConn.Close()

	clientConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	defer clientConn.Close()

	proxyUDP, err := addr.FromNetAddr(serverConn.LocalAddr())
	if err != nil {
		t.Fatalf("addr.FromNetAddr() error = %v", err)
	}
	target := mustAddr(addr.FromDomain("target.example", 53))

	if err := SendTo(clientConn, proxyUDP, target, []byte("query"), time.Second); err != nil {
		t.Fatalf("SendTo() error = %v", err)
	}

	sender, gotTarget, data, err := ReceiveFrom(serverConn, time.Second)
	if err != nil {
		t.Fatalf("ReceiveFrom() error = %v", err)
	}
	if string(data) != "query" {
		t.Errorf("data = %q, want %q", data, "query")
	}
	if gotTarget.HostPort() != target.HostPort() {
		t.Errorf("target = %v, want %v", gotTarget, target)
	}
	if sender.IP.String() != "127.0.0.1" {
		t.Errorf("sender = %v, want 127.0.0.1:*", sender)
	}
}

func mustAddr(a addr.Addr, err error) addr.Addr {
	if err != nil {
		panic(err)
	}
	return a
}
