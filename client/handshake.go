package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"socks5core/pkg/wire"
)

// withDeadline runs fn with a read/write deadline set on a
// deadline-capable connection, so every stage of a handshake runs under
// one shared timeout budget.
type deadliner interface {
	SetDeadline(t time.Time) error
}

func withDeadline(conn deadliner, timeout time.Duration, fn func() error) error {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
		defer conn.SetDeadline(time.Time{})
	}
	if err := fn(); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("%w: %s", ErrTimeout, err)
		}
		return err
	}
	return nil
}

// auth runs the greeting/method-choice/optional USER subnegotiation
// against an already-connected proxy socket. It reads exact-sized fields
// straight off rw, never buffering ahead of the message being parsed.
func auth(rw io.ReadWriter, opts AuthOptions) error {
	if err := opts.greeting().Write(rw); err != nil {
		return fmt.Errorf("writing ClientGreeting: %w", err)
	}

	choice, err := wire.ReadServerChoice(rw)
	if err != nil {
		return fmt.Errorf("reading ServerChoice: %w", err)
	}

	switch choice.Method {
	case wire.MethodNone:
		if opts.none == nil {
			return fmt.Errorf("%w: proxy chose None but it was not offered", ErrGeneralFailure)
		}
		return nil
	case wire.MethodUser:
		if opts.user == nil {
			return fmt.Errorf("%w: proxy chose User but it was not offered", ErrGeneralFailure)
		}
		req := wire.UserAuthRequest{Username: opts.user.username, Password: opts.user.password}
		if err := req.Write(rw); err != nil {
			return fmt.Errorf("writing UserAuthRequest: %w", err)
		}
		resp, err := wire.ReadUserAuthResponse(rw)
		if err != nil {
			return fmt.Errorf("reading UserAuthResponse: %w", err)
		}
		if resp.Status != wire.UserAuthSuccess {
			return ErrAuthFailure
		}
		return nil
	default:
		return fmt.Errorf("%w: proxy chose unsupported method 0x%02x", ErrGeneralFailure, byte(choice.Method))
	}
}
