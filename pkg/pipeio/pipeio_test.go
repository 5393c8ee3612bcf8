package pipeio

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/muesli/cancelreader"
)

// recordingRWC is a ReadWriteCloser over a fixed reader/writer pair that
// remembers whether Close was called, for assertions below.
type recordingRWC struct {
	reader io.Reader
	writer io.Writer
	mu     sync.Mutex
	closed bool
}

func newRecordingRWC(r io.Reader, w io.Writer) *recordingRWC {
	return &recordingRWC{reader: r, writer: w}
}

func (f *recordingRWC) Read(p []byte) (int, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return 0, io.EOF
	}
	return f.reader.Read(p)
}

func (f *recordingRWC) Write(p []byte) (int, error) {
	f.mu.Lock()
	closed := f.closed
	f.mu.Unlock()
	if closed {
		return 0, io.ErrClosedPipe
	}
	return f.writer.Write(p)
}

func (f *recordingRWC) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *recordingRWC) wasClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func collectingLogger() (func(error), func() []error) {
	var mu sync.Mutex
	var errs []error
	log := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		errs = append(errs, err)
	}
	snapshot := func() []error {
		mu.Lock()
		defer mu.Unlock()
		out := make([]error, len(errs))
		copy(out, errs)
		return out
	}
	return log, snapshot
}

func TestPipeCopiesBothDirections(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Two pipes stand in for the two spliced connections; the test holds
	// the outer ends, Pipe holds the inner ones.
	clientOuter, clientInner := net.Pipe()
	targetOuter, targetInner := net.Pipe()
	defer clientOuter.Close()
	defer targetOuter.Close()

	logErr, _ := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(ctx, clientInner, targetInner, logErr)
		close(done)
	}()

	go clientOuter.Write([]byte("request"))
	buf := make([]byte, 64)
	n, err := targetOuter.Read(buf)
	if err != nil {
		t.Fatalf("targetOuter.Read() error = %v", err)
	}
	if string(buf[:n]) != "request" {
		t.Errorf("targetOuter.Read() = %q, want %q", buf[:n], "request")
	}

	go targetOuter.Write([]byte("response"))
	n, err = clientOuter.Read(buf)
	if err != nil {
		t.Fatalf("clientOuter.Read() error = %v", err)
	}
	if string(buf[:n]) != "response" {
		t.Errorf("clientOuter.Read() = %q, want %q", buf[:n], "response")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Pipe() did not return after context cancellation")
	}
}

func TestPipeContextCancellationUnblocksImmediately(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())

	clientSide, targetSide := net.Pipe()
	defer clientSide.Close()
	defer targetSide.Close()

	logErr, _ := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(ctx, clientSide, targetSide, logErr)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Pipe() did not return after context cancellation")
	}
}

func TestPipeReturnsOnEOFAndClosesBothLegs(t *testing.T) {
	t.Parallel()

	rwc1 := newRecordingRWC(strings.NewReader(""), io.Discard)
	rwc2 := newRecordingRWC(strings.NewReader(""), io.Discard)

	logErr, _ := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(context.Background(), rwc1, rwc2, logErr)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Pipe() did not return on EOF")
	}

	if !rwc1.wasClosed() || !rwc2.wasClosed() {
		t.Error("Pipe() did not close both legs")
	}
}

// errOnRead always fails a Read with a fixed error, immediately.
type errOnRead struct{ err error }

func (e *errOnRead) Read(p []byte) (int, error) { return 0, e.err }

func TestPipeSwallowsCancelReaderError(t *testing.T) {
	t.Parallel()

	rwc1 := newRecordingRWC(&errOnRead{err: cancelreader.ErrCanceled}, io.Discard)
	rwc2 := newRecordingRWC(strings.NewReader(""), io.Discard)

	logErr, errs := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(context.Background(), rwc1, rwc2, logErr)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Pipe() did not return after a cancelreader error")
	}

	for _, err := range errs() {
		if errors.Is(err, cancelreader.ErrCanceled) {
			t.Error("cancelreader.ErrCanceled should not reach logfunc")
		}
	}
}

func TestPipeSwallowsConnectionResetError(t *testing.T) {
	t.Parallel()

	rwc1 := newRecordingRWC(&errOnRead{err: syscall.ECONNRESET}, io.Discard)
	rwc2 := newRecordingRWC(strings.NewReader(""), io.Discard)

	logErr, errs := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(context.Background(), rwc1, rwc2, logErr)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Pipe() did not return after a connection reset")
	}

	for _, err := range errs() {
		if errors.Is(err, syscall.ECONNRESET) {
			t.Error("syscall.ECONNRESET should not reach logfunc")
		}
	}
}

// TestPipeUnblocksPeerOnOneSideError confirms a read error on one leg closes
// both net.Conns, which unblocks a genuinely blocked peer read the way a
// real socket (not a bare io.Reader wrapper) behaves once closed.
func TestPipeUnblocksPeerOnOneSideError(t *testing.T) {
	t.Parallel()

	failing, failingPeer := net.Pipe()
	defer failingPeer.Close()
	blocked, blockedPeer := net.Pipe()
	defer blockedPeer.Close()

	failingPeer.Close() // any Read/Write on failing now errors immediately

	logErr, _ := collectingLogger()

	done := make(chan struct{})
	go func() {
		Pipe(context.Background(), failing, blocked, logErr)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Pipe() never returned")
	}

	if _, err := blockedPeer.Write([]byte("x")); err == nil {
		t.Error("blocked leg's peer should see its connection closed once Pipe returns")
	}
}
