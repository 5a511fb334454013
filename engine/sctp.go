package engine

import (
	"context"
	"net"
	"time"

	"github.com/ishidawataru/sctp"
)

// SCTP wraps a *sctp.SCTPConn, giving associations the same uniform Engine
// surface as the stream transports (spec.md §1: "Transport selection: TCP,
// UDP, SCTP, TLS, DTLS").
type SCTP struct {
	c *sctp.SCTPConn
}

// NewSCTP wraps an accepted SCTP association.
func NewSCTP(c *sctp.SCTPConn) *SCTP {
	return &SCTP{c: c}
}

// ListenSCTP opens a listening SCTP endpoint for a scheme.
func ListenSCTP(addr string) (*sctp.SCTPListener, error) {
	laddr, err := sctp.ResolveSCTPAddr("sctp", addr)
	if err != nil {
		return nil, err
	}
	return sctp.ListenSCTP("sctp", laddr)
}

func (s *SCTP) Read(p []byte) (int, error)  { return s.c.Read(p) }
func (s *SCTP) Write(p []byte) (int, error) { return s.c.Write(p) }

func (s *SCTP) Handshake(ctx context.Context) error { return nil }
func (s *SCTP) SetBlocking(on bool) error           { return nil }

func (s *SCTP) SetBuffers(rx, tx int) error {
	if rx > 0 {
		if err := s.c.SetReadBuffer(rx); err != nil {
			return err
		}
	}
	if tx > 0 {
		if err := s.c.SetWriteBuffer(tx); err != nil {
			return err
		}
	}
	return nil
}

func (s *SCTP) SetDeadline(t time.Time, method Method) error {
	switch method {
	case MethodRead:
		return s.c.SetReadDeadline(t)
	case MethodWrite:
		return s.c.SetWriteDeadline(t)
	default:
		return s.c.SetDeadline(t)
	}
}

func (s *SCTP) Cork(on bool) error      { return nil }
func (s *SCTP) NoDelay(on bool) error   { return s.c.SetNoDelay(on) }
func (s *SCTP) NextProto(p string) error { return nil }

// KeepAlive is a no-op: ishidawataru/sctp exposes no per-association
// keep-alive knob; SCTP's own heartbeat mechanism covers the same need at
// the protocol level.
func (s *SCTP) KeepAlive(idle time.Duration, cnt, intvl int) error { return nil }

func (s *SCTP) LocalAddr() net.Addr  { return s.c.LocalAddr() }
func (s *SCTP) RemoteAddr() net.Addr { return s.c.RemoteAddr() }
func (s *SCTP) Close() error         { return s.c.Close() }
