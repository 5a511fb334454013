package engine

import (
	"context"
	"crypto/tls"
	"net"
	"time"
)

// TLS wraps a *tls.Conn, running the handshake explicitly via Handshake so
// the caller's reactor can treat "handshake pending" as a retry-able
// condition (ClassHandshakePending) rather than blocking the loop goroutine.
type TLS struct {
	c    *tls.Conn
	tcp  *net.TCPConn // underlying conn, when available, for buffer/cork knobs
}

// NewTLS wraps an accepted connection with a server-side tls.Conn using cfg.
func NewTLS(raw net.Conn, cfg *tls.Config) *TLS {
	t := &TLS{c: tls.Server(raw, cfg)}
	if tc, ok := raw.(*net.TCPConn); ok {
		t.tcp = tc
	}
	return t
}

func (t *TLS) Read(p []byte) (int, error)  { return t.c.Read(p) }
func (t *TLS) Write(p []byte) (int, error) { return t.c.Write(p) }

func (t *TLS) Handshake(ctx context.Context) error {
	if dl, ok := ctx.Deadline(); ok {
		_ = t.c.SetDeadline(dl)
		defer func() { _ = t.c.SetDeadline(time.Time{}) }()
	}
	err := t.c.HandshakeContext(ctx)
	if err != nil && Classify(err) == ClassAgain {
		return errHandshakePending
	}
	return err
}

func (t *TLS) SetBlocking(on bool) error { return nil }

func (t *TLS) SetBuffers(rx, tx int) error {
	if t.tcp == nil {
		return nil
	}
	if rx > 0 {
		if err := t.tcp.SetReadBuffer(rx); err != nil {
			return err
		}
	}
	if tx > 0 {
		if err := t.tcp.SetWriteBuffer(tx); err != nil {
			return err
		}
	}
	return nil
}

func (t *TLS) SetDeadline(tm time.Time, method Method) error {
	switch method {
	case MethodRead:
		return t.c.SetReadDeadline(tm)
	case MethodWrite:
		return t.c.SetWriteDeadline(tm)
	default:
		return t.c.SetDeadline(tm)
	}
}

func (t *TLS) Cork(on bool) error {
	if t.tcp == nil {
		return nil
	}
	return setCork(t.tcp, on)
}

func (t *TLS) NoDelay(on bool) error {
	if t.tcp == nil {
		return nil
	}
	return t.tcp.SetNoDelay(on)
}

// KeepAlive delegates to the underlying *net.TCPConn when one is available;
// a no-op otherwise (e.g. a TLS conn not backed by a raw TCPConn).
func (t *TLS) KeepAlive(idle time.Duration, cnt, intvl int) error {
	if t.tcp == nil {
		return nil
	}
	if idle <= 0 {
		return t.tcp.SetKeepAlive(false)
	}
	if err := t.tcp.SetKeepAlive(true); err != nil {
		return err
	}
	if err := t.tcp.SetKeepAlivePeriod(idle); err != nil {
		return err
	}
	return setKeepAliveProbes(t.tcp, cnt, intvl)
}

// NextProto is a no-op post-handshake: ALPN is negotiated during Handshake
// via the tls.Config's NextProtos; callers set it before wrapping.
func (t *TLS) NextProto(proto string) error { return nil }

// NegotiatedProto returns the protocol negotiated over ALPN, if any, after a
// successful Handshake — used by server to decide HTTP/1.1 vs h2.
func (t *TLS) NegotiatedProto() string {
	return t.c.ConnectionState().NegotiatedProtocol
}

func (t *TLS) LocalAddr() net.Addr  { return t.c.LocalAddr() }
func (t *TLS) RemoteAddr() net.Addr { return t.c.RemoteAddr() }
func (t *TLS) Close() error         { return t.c.Close() }

type handshakePendingError struct{}

func (handshakePendingError) Error() string { return "handshake pending" }

var errHandshakePending = handshakePendingError{}

// IsHandshakePending reports whether err is the sentinel returned by
// Handshake to mean "call again once the socket is readable/writable".
func IsHandshakePending(err error) bool {
	_, ok := err.(handshakePendingError)
	return ok
}
