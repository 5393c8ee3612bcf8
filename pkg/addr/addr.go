// Package addr implements the SOCKS5 address model: a small tagged union of
// IPv4, IPv6, and domain-name addresses, plus the network-byte-order port
// that always travels with them on the wire.
package addr

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// Type is a SOCKS5 address type (ATYP).
type Type byte

// The three address types defined by RFC 1928 section 5.
const (
	IPv4   Type = 0x01
	Domain Type = 0x03
	IPv6   Type = 0x04
)

func (t Type) String() string {
	switch t {
	case IPv4:
		return "IPv4"
	case Domain:
		return "Domain"
	case IPv6:
		return "IPv6"
	default:
		return fmt.Sprintf("Type(0x%02x)", byte(t))
	}
}

// ErrAddressTypeNotSupported is returned when a message carries an ATYP byte
// outside of {IPv4, Domain, IPv6}.
var ErrAddressTypeNotSupported = errors.New("socks5: address type not supported")

// ErrEmptyAddress is returned when a caller asked for an Address from data
// that resolves to nothing usable (e.g. an empty domain string).
var ErrEmptyAddress = errors.New("socks5: empty address")

// MaxDomainLen is the largest domain name byte-length the wire format can
// carry: a single length-prefix byte.
const MaxDomainLen = 255

// Addr is the canonical in-memory SOCKS5 address: a value type, freely
// copyable, tagged by Type.
type Addr struct {
	typ    Type
	ip     netip.Addr // valid when typ is IPv4 or IPv6
	domain string     // valid when typ is Domain
	port   uint16
}

// FromIP builds an Addr from a netip.Addr and port. The address must be a
// valid IPv4 or IPv6 address (4-in-6 mapped addresses are unmapped first).
func FromIP(ip netip.Addr, port uint16) (Addr, error) {
	if !ip.IsValid() {
		return Addr{}, ErrEmptyAddress
	}
	ip = ip.Unmap()

	switch {
	case ip.Is4():
		return Addr{typ: IPv4, ip: ip, port: port}, nil
	case ip.Is6():
		return Addr{typ: IPv6, ip: ip, port: port}, nil
	default:
		return Addr{}, fmt.Errorf("socks5: ip %s is neither IPv4 nor IPv6", ip)
	}
}

// FromDomain builds an Addr naming a domain and port. len(name) must be in
// [1, MaxDomainLen]; a zero-length domain is malformed.
func FromDomain(name string, port uint16) (Addr, error) {
	if len(name) == 0 {
		return Addr{}, fmt.Errorf("%w: zero-length domain", ErrEmptyAddress)
	}
	if len(name) > MaxDomainLen {
		return Addr{}, fmt.Errorf("socks5: domain %q exceeds %d bytes", name, MaxDomainLen)
	}
	return Addr{typ: Domain, domain: name, port: port}, nil
}

// FromNetAddr builds an Addr from a net.Addr (TCPAddr or UDPAddr), taking
// the endpoint's IP and port directly.
func FromNetAddr(a net.Addr) (Addr, error) {
	var ip net.IP
	var port int

	switch v := a.(type) {
	case *net.TCPAddr:
		ip, port = v.IP, v.Port
	case *net.UDPAddr:
		ip, port = v.IP, v.Port
	default:
		return Addr{}, fmt.Errorf("socks5: unsupported net.Addr type %T", a)
	}

	nip, ok := netip.AddrFromSlice(ip)
	if !ok {
		return Addr{}, fmt.Errorf("socks5: could not convert %s to netip.Addr", ip)
	}
	return FromIP(nip, uint16(port))
}

// FromHostPort parses a "host:port" string into an Addr: an IP literal
// becomes an IPv4/IPv6 variant, anything else a Domain.
func FromHostPort(s string) (Addr, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Addr{}, fmt.Errorf("socks5: parsing %q: %w", s, err)
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return Addr{}, fmt.Errorf("socks5: parsing port of %q: %w", s, err)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		return FromIP(ip, uint16(port))
	}
	return FromDomain(host, uint16(port))
}

// Type reports which variant this Addr holds.
func (a Addr) Type() Type { return a.typ }

// Port returns the host-byte-order port.
func (a Addr) Port() uint16 { return a.port }

// IP returns the address's IP and true when the variant is IPv4 or IPv6.
func (a Addr) IP() (netip.Addr, bool) {
	if a.typ == Domain {
		return netip.Addr{}, false
	}
	return a.ip, true
}

// Domain returns the address's domain name and true when the variant is
// Domain.
func (a Addr) Domain() (string, bool) {
	if a.typ != Domain {
		return "", false
	}
	return a.domain, true
}

// IsZeroIP reports whether the address is an IP variant whose bytes are all
// zero (the RFC 1928 §6 / OpenSSH SOCKS4 "substitute the peer's IP"
// convention used by BIND and UDP ASSOCIATE).
func (a Addr) IsZeroIP() bool {
	if a.typ == Domain {
		return false
	}
	return a.ip.IsUnspecified()
}

// String renders the address the way a human (or a log line) would expect:
// the bare IP or domain, with no port.
func (a Addr) String() string {
	switch a.typ {
	case Domain:
		return a.domain
	default:
		return a.ip.String()
	}
}

// HostPort renders "host:port", bracketing IPv6 literals.
func (a Addr) HostPort() string {
	switch a.typ {
	case IPv6:
		return fmt.Sprintf("[%s]:%d", a.ip, a.port)
	default:
		return fmt.Sprintf("%s:%d", a.String(), a.port)
	}
}

// WireLen returns the number of bytes the address payload occupies on the
// wire, excluding both the 1-byte ATYP and the 2-byte port (a domain counts
// its 1-byte length prefix).
func (a Addr) WireLen() int {
	switch a.typ {
	case IPv4:
		return 4
	case IPv6:
		return 16
	case Domain:
		return 1 + len(a.domain)
	default:
		return 0
	}
}

// Zero builds the all-zero address of the given type, used for replies
// that carry no meaningful bound endpoint (e.g. a CommandNotSupported
// reply echoing the request's ATYP). A Domain type has no zero form and
// falls back to the zero IPv4 address.
func Zero(t Type) Addr {
	switch t {
	case IPv6:
		return Addr{typ: IPv6, ip: netip.IPv6Unspecified()}
	default:
		return Addr{typ: IPv4, ip: netip.IPv4Unspecified()}
	}
}

// AsEndpoint converts the address to a net.TCPAddr when it is an IP variant.
// Domains have no native endpoint until resolved; ok is false for those.
func (a Addr) AsEndpoint() (*net.TCPAddr, bool) {
	if a.typ == Domain {
		return nil, false
	}
	return &net.TCPAddr{IP: net.IP(a.ip.AsSlice()), Port: int(a.port)}, true
}
