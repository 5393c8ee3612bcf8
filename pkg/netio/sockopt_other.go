//go:build !linux

package netio

import "syscall"

// setSocketOptions is a no-op on non-Linux platforms. The Linux-specific
// version in sockopt_linux.go sets SO_REUSEADDR.
func setSocketOptions(network, address string, c syscall.RawConn) error {
	return nil
}
