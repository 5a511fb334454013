package engine

import (
	"context"
	"net"
	"time"
)

// UDP wraps a *net.UDPConn, either the listening socket shared by every peer
// on a scheme or a peer-scoped view of it. Read returns datagrams from any
// peer; callers demultiplex by the peer address returned from ReadFrom. The
// server package does not use this type: its UDP demux has its own per-peer
// engine (udpPeerEngine in server/udp.go).
type UDP struct {
	c    *net.UDPConn
	peer net.Addr // set for a peer-scoped engine created after a ReadFrom demux
}

// NewUDP wraps the listening socket itself.
func NewUDP(c *net.UDPConn) *UDP {
	return &UDP{c: c}
}

// NewUDPPeer returns an engine scoped to a single remote peer: Write always
// targets peer, while Read still reads from the shared socket and so returns
// datagrams from any peer.
func NewUDPPeer(c *net.UDPConn, peer net.Addr) *UDP {
	return &UDP{c: c, peer: peer}
}

// ReadFrom reads one datagram and returns its source address, used by the
// server's UDP accept/demux loop.
func (u *UDP) ReadFrom(p []byte) (n int, addr net.Addr, err error) {
	return u.c.ReadFrom(p)
}

func (u *UDP) Read(p []byte) (int, error) {
	n, _, err := u.c.ReadFrom(p)
	return n, err
}

func (u *UDP) Write(p []byte) (int, error) {
	if u.peer != nil {
		return u.c.WriteTo(p, u.peer)
	}
	return u.c.Write(p)
}

func (u *UDP) Handshake(ctx context.Context) error { return nil }

// SetBlocking temporarily toggles blocking mode for the duration of one
// write to guarantee datagram atomicity (spec.md §4.4 transfer rule). Go's
// net.UDPConn has no notion of non-blocking mode at this layer — writes to a
// UDP socket are always atomic at the syscall level — so this is a
// documented no-op that exists to keep Engine uniform across transports.
func (u *UDP) SetBlocking(on bool) error { return nil }

func (u *UDP) SetBuffers(rx, tx int) error {
	if rx > 0 {
		if err := u.c.SetReadBuffer(rx); err != nil {
			return err
		}
	}
	if tx > 0 {
		if err := u.c.SetWriteBuffer(tx); err != nil {
			return err
		}
	}
	return nil
}

func (u *UDP) SetDeadline(t time.Time, method Method) error {
	switch method {
	case MethodRead:
		return u.c.SetReadDeadline(t)
	case MethodWrite:
		return u.c.SetWriteDeadline(t)
	default:
		return u.c.SetDeadline(t)
	}
}

func (u *UDP) Cork(on bool) error     { return nil }
func (u *UDP) NoDelay(on bool) error  { return nil }
func (u *UDP) NextProto(s string) error { return nil }

// KeepAlive is a no-op: UDP has no connection-level keep-alive notion.
func (u *UDP) KeepAlive(idle time.Duration, cnt, intvl int) error { return nil }

func (u *UDP) LocalAddr() net.Addr {
	return u.c.LocalAddr()
}

func (u *UDP) RemoteAddr() net.Addr {
	if u.peer != nil {
		return u.peer
	}
	return nil
}

func (u *UDP) Close() error { return u.c.Close() }
