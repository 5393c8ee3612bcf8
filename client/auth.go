// Package client implements the SOCKS5 client core: CONNECT, BIND, and UDP
// ASSOCIATE against an upstream proxy, NONE/USER authentication, and the
// UDP datagram encode/decode facility for an associated relay.
package client

import (
	"fmt"

	"socks5core/pkg/wire"
)

// MaxAuthFieldLen is the largest username or password this client will
// send, matching the wire format's single length-prefix byte.
const MaxAuthFieldLen = wire.MaxAuthFieldLen

// authMethod is one entry of an AuthOptions set.
type authMethod struct {
	method   wire.Method
	username string
	password string
}

// NoneAuth advertises the "no authentication required" method.
func NoneAuth() authMethod {
	return authMethod{method: wire.MethodNone}
}

// UserAuth advertises the username/password method with the given
// credentials. Returns an error if either field exceeds MaxAuthFieldLen.
func UserAuth(username, password string) (authMethod, error) {
	if len(username) > MaxAuthFieldLen || len(password) > MaxAuthFieldLen {
		return authMethod{}, fmt.Errorf("socks5: username/password exceeds %d bytes", MaxAuthFieldLen)
	}
	return authMethod{method: wire.MethodUser, username: username, password: password}, nil
}

// AuthOptions is the ordered set of methods a client advertises: at most
// one None entry and one User entry. The wire order is always None first,
// then User, regardless of the order passed to New.
type AuthOptions struct {
	none *authMethod
	user *authMethod
}

// New builds an AuthOptions from one or two auth methods built with
// NoneAuth/UserAuth. Passing the same kind twice is an error.
func New(methods ...authMethod) (AuthOptions, error) {
	var opts AuthOptions
	for _, m := range methods {
		switch m.method {
		case wire.MethodNone:
			if opts.none != nil {
				return AuthOptions{}, fmt.Errorf("socks5: NoneAuth specified twice")
			}
			m := m
			opts.none = &m
		case wire.MethodUser:
			if opts.user != nil {
				return AuthOptions{}, fmt.Errorf("socks5: UserAuth specified twice")
			}
			m := m
			opts.user = &m
		default:
			return AuthOptions{}, fmt.Errorf("socks5: unsupported auth method %v", m.method)
		}
	}
	if opts.none == nil && opts.user == nil {
		return AuthOptions{}, fmt.Errorf("socks5: at least one auth method is required")
	}
	return opts, nil
}

// Size returns the number of methods advertised.
func (o AuthOptions) Size() int {
	n := 0
	if o.none != nil {
		n++
	}
	if o.user != nil {
		n++
	}
	return n
}

// greeting builds the ClientGreeting advertising None first, then User.
func (o AuthOptions) greeting() wire.ClientGreeting {
	var methods []wire.Method
	if o.none != nil {
		methods = append(methods, wire.MethodNone)
	}
	if o.user != nil {
		methods = append(methods, wire.MethodUser)
	}
	return wire.ClientGreeting{Methods: methods}
}
