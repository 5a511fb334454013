package server

import (
	"context"
	"fmt"
	"net"

	"github.com/pion/dtls/v2"

	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/internal/xerrors"
	"github.com/anyks/awh-sub001/scheme"
)

// startDTLS opens the cookie-verifying listening endpoint; pion/dtls's
// Accept only returns once the two-step cookie exchange (RFC 6347 §4.2.1)
// and the full handshake have completed, so every *dtls.Conn handed back
// here is already a live session (spec.md §4.5's "two-step accept").
func (s *Server) startDTLS(ctx context.Context, sch *scheme.Scheme) error {
	cfg := sch.Config()
	laddr, err := net.ResolveUDPAddr("udp", netAddr(cfg))
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "resolve dtls addr failed", err)
	}

	ln, err := engine.ListenDTLS(laddr, &dtls.Config{})
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "dtls listen failed", err)
	}

	s.mu.Lock()
	s.listener[sch.ID()] = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.Accept()
			if err != nil {
				if !s.running.Load() {
					return
				}
				s.emitError(xerrors.CodeAccept, err)
				continue
			}

			dconn, ok := conn.(*dtls.Conn)
			if !ok {
				s.emitError(xerrors.CodeAccept, fmt.Errorf("server: unexpected dtls conn type %T", conn))
				_ = conn.Close()
				continue
			}

			peer, admitted := s.acceptGate(conn.RemoteAddr(), sch.ID())
			if !admitted {
				_ = conn.Close()
				continue
			}
			s.finishAccept(sch, engine.NewDTLS(dconn), peer)
		}
	}()
	return nil
}
