package client

import (
	"errors"
	"fmt"

	"socks5core/pkg/wire"
)

// Sentinel errors surfaced by the client core for client-side failures,
// as opposed to REP codes, which are server-originated.
var (
	ErrAuthFailure    = errors.New("socks5: authentication failed")
	ErrGeneralFailure = errors.New("socks5: general failure")
	ErrTimeout        = errors.New("socks5: operation timed out")
)

// ReplyError wraps a non-success Rep code returned by the proxy, so
// callers can branch on it with errors.As while still getting a readable
// message.
type ReplyError struct {
	Rep wire.Rep
}

func (e *ReplyError) Error() string {
	return fmt.Sprintf("socks5: proxy replied %s", e.Rep)
}

// replyToError translates a non-success Reply into an error for the
// caller.
func replyToError(rep wire.Rep) error {
	if rep == wire.RepSuccess {
		return nil
	}
	return &ReplyError{Rep: rep}
}
