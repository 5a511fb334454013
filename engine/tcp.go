package engine

import (
	"context"
	"net"
	"time"
)

// TCP wraps a *net.TCPConn. Cork/NoDelay map directly onto net.TCPConn's
// knobs; Handshake is a no-op (plain TCP has none).
type TCP struct {
	c *net.TCPConn
}

// NewTCP wraps an already-accepted TCP connection.
func NewTCP(c *net.TCPConn) *TCP {
	return &TCP{c: c}
}

func (t *TCP) Read(p []byte) (int, error)  { return t.c.Read(p) }
func (t *TCP) Write(p []byte) (int, error) { return t.c.Write(p) }

func (t *TCP) Handshake(ctx context.Context) error { return nil }

func (t *TCP) SetBlocking(on bool) error {
	// net.Conn is always presented as a blocking-style API from Go's
	// perspective; SetBlocking is a documented no-op here, the goroutine
	// scheduler already multiplexes the underlying non-blocking fd.
	return nil
}

func (t *TCP) SetBuffers(rx, tx int) error {
	if rx > 0 {
		if err := t.c.SetReadBuffer(rx); err != nil {
			return err
		}
	}
	if tx > 0 {
		if err := t.c.SetWriteBuffer(tx); err != nil {
			return err
		}
	}
	return nil
}

func (t *TCP) SetDeadline(tm time.Time, method Method) error {
	switch method {
	case MethodRead:
		return t.c.SetReadDeadline(tm)
	case MethodWrite:
		return t.c.SetWriteDeadline(tm)
	default:
		return t.c.SetDeadline(tm)
	}
}

func (t *TCP) Cork(on bool) error {
	// Linux-only TCP_CORK; best-effort, not surfaced as a fatal error on
	// platforms/conns where it cannot be applied.
	return setCork(t.c, on)
}

func (t *TCP) NoDelay(on bool) error {
	return t.c.SetNoDelay(on)
}

// KeepAlive applies the {cnt, idle, intvl} tuple: idle <= 0 disables
// keep-alive outright, otherwise SetKeepAlivePeriod covers the idle leg and
// setKeepAliveProbes applies the platform-specific TCP_KEEPCNT/TCP_KEEPINTVL
// the stdlib doesn't expose.
func (t *TCP) KeepAlive(idle time.Duration, cnt, intvl int) error {
	if idle <= 0 {
		return t.c.SetKeepAlive(false)
	}
	if err := t.c.SetKeepAlive(true); err != nil {
		return err
	}
	if err := t.c.SetKeepAlivePeriod(idle); err != nil {
		return err
	}
	return setKeepAliveProbes(t.c, cnt, intvl)
}

func (t *TCP) NextProto(proto string) error {
	// plain TCP has no ALPN; the caller should use TLS for protocol
	// negotiation. Accepted as a no-op so callers can treat Engine
	// uniformly regardless of transport.
	return nil
}

func (t *TCP) LocalAddr() net.Addr  { return t.c.LocalAddr() }
func (t *TCP) RemoteAddr() net.Addr { return t.c.RemoteAddr() }
func (t *TCP) Close() error         { return t.c.Close() }
