package server

import (
	"errors"
	"strings"

	"socks5core/pkg/wire"
)

var errAuthEnabledWithoutCallback = errors.New("server: EnableUserAuth requires SetUserAuthCallback or SetAuth")

// The following classifiers map Go dial errors onto SOCKS5 REP codes.
// Go surfaces dial failures as platform-dependent *net.OpError messages
// with no single typed error across platforms, so matching on the message
// suffix is the portable check.

func isErrorHostUnreachable(err error) bool {
	return strings.HasSuffix(err.Error(), "no such host")
}

func isErrorConnectionRefused(err error) bool {
	s := err.Error()
	return strings.HasSuffix(s, "connection refused") || strings.HasSuffix(s, "host is down")
}

func isErrorNetworkUnreachable(err error) bool {
	return strings.HasSuffix(err.Error(), "network is unreachable")
}

// repForDialError maps a dial error to the REP code a CONNECT failure
// reply carries: connection refused, host unreachable, and network
// unreachable each have their own code; everything else is a general
// failure.
func repForDialError(err error) wire.Rep {
	switch {
	case isErrorConnectionRefused(err):
		return wire.RepConnectionRefused
	case isErrorHostUnreachable(err):
		return wire.RepHostUnreachable
	case isErrorNetworkUnreachable(err):
		return wire.RepNetworkUnreachable
	default:
		return wire.RepGeneralFailure
	}
}
