//go:build linux

package engine

import (
	"net"

	"golang.org/x/sys/unix"
)

func setCork(c *net.TCPConn, on bool) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	val := 0
	if on {
		val = 1
	}
	err = raw.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_CORK, val)
	})
	if err != nil {
		return err
	}
	return serr
}

// setKeepAliveProbes applies the three-way keep-alive tuple
// {cnt, idle, intvl} the stdlib does not expose beyond the idle period
// (spec.md §4.3 Broker, SPEC_FULL.md §5 keep-alive tuple).
func setKeepAliveProbes(c *net.TCPConn, cnt, intvl int) error {
	raw, err := c.SyscallConn()
	if err != nil {
		return err
	}
	var serr error
	err = raw.Control(func(fd uintptr) {
		if cnt > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, cnt); e != nil {
				serr = e
				return
			}
		}
		if intvl > 0 {
			if e := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPINTVL, intvl); e != nil {
				serr = e
				return
			}
		}
	})
	if err != nil {
		return err
	}
	return serr
}
