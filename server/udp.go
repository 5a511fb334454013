package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/internal/xerrors"
	"github.com/anyks/awh-sub001/scheme"
)

// udpPeerEngine gives one demultiplexed peer its own broker and Engine surface
// over the single shared listening socket: every peer address gets a broker
// of its own, and the listening socket itself has no broker. Write targets
// the peer directly; Read drains a
// per-peer inbox fed by the scheme's shared demux loop rather than calling
// ReadFrom itself, since only the demux loop may read the shared socket.
type udpPeerEngine struct {
	conn  *net.UDPConn
	peer  net.Addr
	inbox chan []byte
	done  chan struct{}
	once  sync.Once
}

func newUDPPeerEngine(conn *net.UDPConn, peer net.Addr) *udpPeerEngine {
	return &udpPeerEngine{
		conn:  conn,
		peer:  peer,
		inbox: make(chan []byte, 64),
		done:  make(chan struct{}),
	}
}

// deliver hands one already-demultiplexed datagram to this peer's inbox.
// Never blocks the shared demux loop: a full inbox drops the datagram,
// matching UDP's no-retransmit semantics.
func (e *udpPeerEngine) deliver(b []byte) {
	select {
	case e.inbox <- b:
	case <-e.done:
	default:
	}
}

func (e *udpPeerEngine) Read(p []byte) (int, error) {
	select {
	case b := <-e.inbox:
		return copy(p, b), nil
	case <-e.done:
		return 0, errUDPPeerClosed
	}
}

func (e *udpPeerEngine) Write(p []byte) (int, error) { return e.conn.WriteTo(p, e.peer) }

func (e *udpPeerEngine) Handshake(ctx context.Context) error { return nil }
func (e *udpPeerEngine) SetBlocking(on bool) error           { return nil }
func (e *udpPeerEngine) SetBuffers(rx, tx int) error         { return nil }
func (e *udpPeerEngine) SetDeadline(t time.Time, m engine.Method) error { return nil }
func (e *udpPeerEngine) Cork(on bool) error                  { return nil }
func (e *udpPeerEngine) NoDelay(on bool) error               { return nil }
func (e *udpPeerEngine) NextProto(p string) error            { return nil }
func (e *udpPeerEngine) KeepAlive(idle time.Duration, cnt, intvl int) error { return nil }
func (e *udpPeerEngine) LocalAddr() net.Addr                 { return e.conn.LocalAddr() }
func (e *udpPeerEngine) RemoteAddr() net.Addr                { return e.peer }

func (e *udpPeerEngine) Close() error {
	e.once.Do(func() { close(e.done) })
	return nil
}

var _ engine.Engine = (*udpPeerEngine)(nil)

type udpClosedErr struct{}

func (udpClosedErr) Error() string   { return "udp peer closed" }
func (udpClosedErr) Timeout() bool   { return false }
func (udpClosedErr) Temporary() bool { return false }

var errUDPPeerClosed net.Error = udpClosedErr{}

// startUDP binds the scheme's shared socket and runs the demux loop that
// creates a broker the first time a peer is seen and routes every later
// datagram from that peer to its broker's inbox.
func (s *Server) startUDP(ctx context.Context, sch *scheme.Scheme) error {
	cfg := sch.Config()
	laddr, err := net.ResolveUDPAddr("udp", netAddr(cfg))
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "resolve udp addr failed", err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "listen udp failed", err)
	}

	s.mu.Lock()
	s.listener[sch.ID()] = conn
	s.mu.Unlock()

	if s.events.Launched != nil {
		host, port := splitHostPort(conn.LocalAddr())
		s.events.Launched(host.String(), port)
	}

	var peersMu sync.Mutex
	peers := make(map[string]*udpPeerEngine)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		buf := make([]byte, 64*1024)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				if !s.running.Load() {
					return
				}
				s.emitError(xerrors.CodeAccept, err)
				return
			}

			key := addr.String()
			peersMu.Lock()
			pe, seen := peers[key]
			if !seen {
				pe = newUDPPeerEngine(conn, addr)
				peers[key] = pe
			}
			peersMu.Unlock()

			if !seen {
				peer, admitted := s.acceptGate(addr, sch.ID())
				if !admitted {
					peersMu.Lock()
					delete(peers, key)
					peersMu.Unlock()
					continue
				}
				s.finishAccept(sch, pe, peer)
			}

			payload := make([]byte, n)
			copy(payload, buf[:n])
			pe.deliver(payload)
		}
	}()
	return nil
}
