package engine

import (
	"context"
	"net"
	"time"

	"github.com/pion/dtls/v2"
)

// DTLS wraps a *dtls.Conn. pion/dtls's Listener performs the stateless
// HelloVerifyRequest/cookie exchange internally during Accept (RFC 6347
// §4.2.1) before a *dtls.Conn is ever handed back, which is exactly the
// spec's "wait for a ClientHello carrying a valid cookie ... only then a
// child address is forked" two-step (spec.md §4.5): the listening endpoint
// is dtls.Listener, the "forked child address" is the *dtls.Conn Accept
// returns once cookie verification and the full handshake succeed.
type DTLS struct {
	c *dtls.Conn
}

// NewDTLS wraps a connection returned by a dtls.Listener's Accept.
func NewDTLS(c *dtls.Conn) *DTLS {
	return &DTLS{c: c}
}

// ListenDTLS opens the cookie-verifying listening endpoint for a scheme.
func ListenDTLS(addr *net.UDPAddr, cfg *dtls.Config) (net.Listener, error) {
	return dtls.Listen("udp", addr, cfg)
}

func (d *DTLS) Read(p []byte) (int, error)  { return d.c.Read(p) }
func (d *DTLS) Write(p []byte) (int, error) { return d.c.Write(p) }

// Handshake is a no-op: pion's Accept only returns once the handshake
// (including the cookie round-trip) has completed.
func (d *DTLS) Handshake(ctx context.Context) error { return nil }

func (d *DTLS) SetBlocking(on bool) error { return nil }
func (d *DTLS) SetBuffers(rx, tx int) error { return nil }

func (d *DTLS) SetDeadline(t time.Time, method Method) error {
	switch method {
	case MethodRead:
		return d.c.SetReadDeadline(t)
	case MethodWrite:
		return d.c.SetWriteDeadline(t)
	default:
		return d.c.SetDeadline(t)
	}
}

func (d *DTLS) Cork(on bool) error      { return nil }
func (d *DTLS) NoDelay(on bool) error   { return nil }
func (d *DTLS) NextProto(s string) error { return nil }

// KeepAlive is a no-op: DTLS rides on UDP, which has no keep-alive notion.
func (d *DTLS) KeepAlive(idle time.Duration, cnt, intvl int) error { return nil }

func (d *DTLS) LocalAddr() net.Addr  { return d.c.LocalAddr() }
func (d *DTLS) RemoteAddr() net.Addr { return d.c.RemoteAddr() }
func (d *DTLS) Close() error         { return d.c.Close() }
