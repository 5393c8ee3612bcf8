// Package server implements the SOCKS5 server core: a listener that
// terminates the protocol handshake, dispatches CONNECT/BIND sessions to
// the TCP relay engine and UDP ASSOCIATE sessions to the UDP relay
// engine, and exposes a relay-handler and data-processor extension seam
// on both.
package server

import (
	"fmt"
	"net"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of a Server. The zero value is not valid;
// build one with NewBuilder or LoadConfigFile.
type Config struct {
	ListenerIP   string `yaml:"listener_ip"`
	ListenerPort int    `yaml:"listener_port"`

	HandshakeTimeout time.Duration `yaml:"-"`
	TCPRelayTimeout  time.Duration `yaml:"-"`
	UDPRelayTimeout  time.Duration `yaml:"-"`

	HandshakeTimeoutSeconds int `yaml:"handshake_timeout_s"`
	TCPRelayTimeoutSeconds  int `yaml:"tcp_relay_timeout_s"`
	UDPRelayTimeoutSeconds  int `yaml:"udp_relay_timeout_s"`

	Threads int `yaml:"threads"`

	BindValidateAcceptedConn bool `yaml:"bind_validate_accepted_conn"`

	EnableUserAuth bool   `yaml:"enable_user_auth"`
	AuthUsername   string `yaml:"auth_username"`
	AuthPassword   string `yaml:"auth_password"`

	TCPNoDelay bool `yaml:"tcp_nodelay"`
}

// Validate checks every field and returns every problem found rather
// than bailing on the first.
func (c *Config) Validate() []error {
	var errs []error

	ip := net.ParseIP(c.ListenerIP)
	if ip == nil {
		errs = append(errs, fmt.Errorf("config: listener_ip %q is not a valid IP", c.ListenerIP))
	} else if ip.IsUnspecified() {
		errs = append(errs, fmt.Errorf("config: listener_ip must not be the wildcard address %q", c.ListenerIP))
	}

	if c.ListenerPort < 1 || c.ListenerPort > 65535 {
		errs = append(errs, fmt.Errorf("config: listener_port %d out of range (1-65535)", c.ListenerPort))
	}

	if c.Threads < 1 {
		errs = append(errs, fmt.Errorf("config: threads must be at least 1, got %d", c.Threads))
	}

	if c.HandshakeTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: handshake_timeout_s must be positive"))
	}
	if c.TCPRelayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: tcp_relay_timeout_s must be positive"))
	}
	if c.UDPRelayTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: udp_relay_timeout_s must be positive"))
	}

	if c.EnableUserAuth && c.AuthUsername == "" {
		errs = append(errs, fmt.Errorf("config: enable_user_auth requires a non-empty auth_username"))
	}

	return errs
}

// LoadConfigFile reads a YAML config file and validates it.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.HandshakeTimeout = time.Duration(cfg.HandshakeTimeoutSeconds) * time.Second
	cfg.TCPRelayTimeout = time.Duration(cfg.TCPRelayTimeoutSeconds) * time.Second
	cfg.UDPRelayTimeout = time.Duration(cfg.UDPRelayTimeoutSeconds) * time.Second

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, fmt.Errorf("config: %d validation error(s), first: %w", len(errs), errs[0])
	}
	return cfg, nil
}

// ListenAddress renders the configured listener endpoint as "ip:port".
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.ListenerIP, c.ListenerPort)
}
