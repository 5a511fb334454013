//go:build !linux

package engine

import "net"

func setCork(c *net.TCPConn, on bool) error {
	// TCP_CORK is Linux-specific; treated as a best-effort no-op elsewhere.
	return nil
}

func setKeepAliveProbes(c *net.TCPConn, cnt, intvl int) error {
	return nil
}
