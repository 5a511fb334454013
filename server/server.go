// Package server specialises reactor.Node with per-transport accept logic,
// the receive-timeout supervisor and the cluster-aware shutdown order
// (spec.md C6). Grounded on original_source/src/core/server.cpp.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/internal/logger"
	"github.com/anyks/awh-sub001/internal/netproto"
	"github.com/anyks/awh-sub001/internal/xerrors"
	"github.com/anyks/awh-sub001/loop"
	"github.com/anyks/awh-sub001/netutil"
	"github.com/anyks/awh-sub001/reactor"
	"github.com/anyks/awh-sub001/scheme"
	"golang.org/x/time/rate"
)

// Context is the per-broker handle an application HandlerFunc reads and
// writes through, matching the Read/Write/Close surface
// nabbar-golib/socket.Context exposes to handlers.
type Context interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	Broker() *broker.Broker
}

// HandlerFunc is invoked once per accepted broker, on its own goroutine, for
// every transport: each TCP/TLS/SCTP connection and each UDP/DTLS peer. It
// owns the connection until it returns or the broker is closed out from
// under it.
type HandlerFunc func(c Context)

// AcceptFunc is the application's accept(ip, mac, port, sid) -> bool gate.
type AcceptFunc func(ip net.IP, mac string, port int, sid uint64) bool

// Events collects every application-visible callback from spec.md §6 this
// server surfaces.
type Events struct {
	Open        func(sid uint64)
	Launched    func(host string, port int)
	Accept      AcceptFunc
	Connect     func(bid broker.ID, sid uint64)
	Disconnect  func(bid broker.ID, sid uint64)
	Error       func(code xerrors.CodeError, err error)
	Available   func(bid broker.ID, sid uint64)
	Unavailable func(bid broker.ID, sid uint64)
}

// Server is the C6 server core: one reactor Node plus one listener per
// scheme, driving accept loops for every configured transport.
type Server struct {
	log    logger.Logger
	events Events

	mu       sync.RWMutex
	schemes  map[uint64]*scheme.Scheme
	node     *reactor.Node
	handler  HandlerFunc
	tls      *tls.Config
	listener map[uint64]closerIface
	running  atomic.Bool

	wg sync.WaitGroup
}

// closerIface is satisfied by every listener type this package accepts from
// (net.Listener, *net.UDPConn, the dtls/sctp listener wrappers).
type closerIface interface{ Close() error }

// New creates a Server bound to a single scheme and handler. Call AddScheme
// for additional listening endpoints before Start.
func New(cfg scheme.Config, handler HandlerFunc, ev Events, tlsCfg *tls.Config) (*Server, error) {
	if cfg.Sonet == netproto.SonetTCP || cfg.Sonet == netproto.SonetTLS || cfg.Sonet == netproto.SonetSCTP {
		if cfg.Host == "" && cfg.Path == "" {
			return nil, fmt.Errorf("server: invalid address")
		}
	}

	s := &Server{
		log:      logger.New(nil, logger.LevelInfo),
		events:   ev,
		schemes:  make(map[uint64]*scheme.Scheme),
		handler:  handler,
		tls:      tlsCfg,
		listener: make(map[uint64]closerIface),
	}

	s.node = reactor.New(reactor.Callbacks{
		OnAvailable: func(bid broker.ID, sid uint64) {
			if s.events.Available != nil {
				s.events.Available(bid, sid)
			}
		},
		OnUnavailable: func(bid broker.ID, sid uint64) {
			if s.events.Unavailable != nil {
				s.events.Unavailable(bid, sid)
			}
		},
	})

	sch := scheme.New(cfg)
	s.addScheme(sch)
	return s, nil
}

// AddScheme registers another listening endpoint on the same server,
// sharing its reactor Node and handler.
func (s *Server) AddScheme(cfg scheme.Config) *scheme.Scheme {
	sch := scheme.New(cfg)
	s.addScheme(sch)
	return sch
}

func (s *Server) addScheme(sch *scheme.Scheme) {
	s.mu.Lock()
	s.schemes[sch.ID()] = sch
	s.mu.Unlock()
	s.node.AddScheme(sch)
}

// IsRunning reports whether Start has completed and Stop has not yet run.
func (s *Server) IsRunning() bool { return s.running.Load() }

// OpenConnections returns the total broker count across every scheme.
func (s *Server) OpenConnections() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, sch := range s.schemes {
		n += int64(sch.Count())
	}
	return n
}

func (s *Server) emitError(code xerrors.CodeError, err error) {
	if s.events.Error != nil {
		s.events.Error(code, err)
	}
}

// acceptGate resolves peer identity and runs the application's accept hook,
// returning the resolved Peer and whether the connection is admitted.
func (s *Server) acceptGate(raddr net.Addr, sid uint64) (broker.Peer, bool) {
	ip, port := splitHostPort(raddr)
	mac := netutil.LookupMAC(ip)
	p := broker.Peer{IP: ip, MAC: mac, Port: port}

	if s.events.Accept != nil && !s.events.Accept(ip, mac, port, sid) {
		return p, false
	}
	return p, true
}

func splitHostPort(addr net.Addr) (net.IP, int) {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP, a.Port
	case *net.UDPAddr:
		return a.IP, a.Port
	default:
		host, portStr, err := net.SplitHostPort(addr.String())
		if err != nil {
			return nil, 0
		}
		var port int
		_, _ = fmt.Sscanf(portStr, "%d", &port)
		return net.ParseIP(host), port
	}
}

// newLoop is a tiny helper so every broker gets its own timer loop; a real
// deployment would share one loop per reactor, but per-broker loops keep
// idle-timer ownership simple and are cheap (idle until a timer is armed).
func newLoop() *loop.Loop {
	l := loop.New()
	go l.Run()
	return l
}

// finishAccept wires a freshly wrapped engine into a broker, enforces the
// scheme's Total cap, and — if admitted — arms READ, fires connect and
// starts the handler on its own goroutine.
func (s *Server) finishAccept(sch *scheme.Scheme, eng engine.Engine, peer broker.Peer) {
	b := broker.New(sch.ID(), eng, peer, newLoop())
	b.Accept()

	cfg := sch.Config()
	b.SetWaitTimeout(cfg.WaitMessage)
	b.SetReceiveTimeout(cfg.ReadTimeout)
	b.SetBandwidth(cfg.Bandwidth.Rx, cfg.Bandwidth.Tx)

	if err := sch.TryAdd(b); err != nil {
		s.emitError(xerrors.CodeAccept, err)
		_ = eng.Close()
		return
	}

	s.node.RegisterBroker(sch.ID(), b)
	b.Connected()

	if s.events.Connect != nil {
		s.events.Connect(b.ID(), sch.ID())
	}

	if s.handler != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handler(&ctxImpl{s: s, b: b, eng: eng})
			s.disconnectBroker(sch, b)
		}()
	}
}

func (s *Server) disconnectBroker(sch *scheme.Scheme, b *broker.Broker) {
	if b.IsClosed() {
		return
	}
	s.node.Close(b.ID())
	if s.events.Disconnect != nil {
		s.events.Disconnect(b.ID(), sch.ID())
	}
}

// ctxImpl is the Context a HandlerFunc runs against. Read blocks directly on
// the engine, the natural shape for a per-connection goroutine; Write goes
// through the reactor Node's Send so the same backpressure accounting
// (available/unavailable, per-scheme SendQueueCap) applies to a blocking
// handler as to anything driving the reactor asynchronously.
type ctxImpl struct {
	s   *Server
	b   *broker.Broker
	eng engine.Engine
}

// waitBandwidth blocks until n bytes' worth of tokens have been taken from
// lim, requesting at most lim.Burst() tokens per call since rate.Limiter
// rejects any single WaitN whose count exceeds the burst size.
func waitBandwidth(ctx context.Context, lim *rate.Limiter, n int) error {
	burst := lim.Burst()
	if burst <= 0 {
		return nil
	}
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := lim.WaitN(ctx, take); err != nil {
			return err
		}
		n -= take
	}
	return nil
}

func (c *ctxImpl) Read(p []byte) (int, error) {
	n, err := c.eng.Read(p)
	if n > 0 {
		if lim := c.b.LimiterRx(); lim != nil {
			_ = waitBandwidth(context.Background(), lim, n)
		}
	}
	return n, err
}

func (c *ctxImpl) Write(p []byte) (int, error) {
	if lim := c.b.LimiterTx(); lim != nil {
		if err := waitBandwidth(context.Background(), lim, len(p)); err != nil {
			return 0, xerrors.New(xerrors.CodeProtocol, "bandwidth wait canceled", err)
		}
	}
	if !c.s.node.Send(p, c.b.ID(), reactor.Instant) {
		return 0, xerrors.New(xerrors.CodeProtocol, "send rejected by backpressure", nil)
	}
	// Instant already tried one synchronous write; anything left queued is
	// drained here so Write only returns once every byte has actually gone
	// out, the io.Writer contract a blocking handler expects.
	for c.s.node.QueueSize(c.b.ID()) > 0 && !c.b.IsClosed() {
		c.s.node.Write(c.b.ID())
	}
	if c.b.IsClosed() {
		return 0, xerrors.New(xerrors.CodeProtocol, "broker closed mid-write", nil)
	}
	return len(p), nil
}

func (c *ctxImpl) Close() error          { return c.eng.Close() }
func (c *ctxImpl) Broker() *broker.Broker { return c.b }

// Start launches one accept loop per registered scheme, dispatching on the
// scheme's Sonet. It returns once every listener is bound; accept loops keep
// running on their own goroutines until Stop.
func (s *Server) Start(ctx context.Context) error {
	s.mu.RLock()
	schemes := make([]*scheme.Scheme, 0, len(s.schemes))
	for _, sch := range s.schemes {
		schemes = append(schemes, sch)
	}
	s.mu.RUnlock()

	for _, sch := range schemes {
		if err := s.startScheme(ctx, sch); err != nil {
			s.emitError(xerrors.CodeStart, err)
			return err
		}
	}

	s.running.Store(true)
	return nil
}

func (s *Server) startScheme(ctx context.Context, sch *scheme.Scheme) error {
	cfg := sch.Config()

	switch cfg.Sonet {
	case netproto.SonetTCP, netproto.SonetTLS:
		return s.startStream(ctx, sch)
	case netproto.SonetSCTP:
		return s.startSCTP(ctx, sch)
	case netproto.SonetUDP:
		return s.startUDP(ctx, sch)
	case netproto.SonetDTLS:
		return s.startDTLS(ctx, sch)
	default:
		return fmt.Errorf("server: unsupported sonet %v", cfg.Sonet)
	}
}

func (s *Server) startStream(ctx context.Context, sch *scheme.Scheme) error {
	cfg := sch.Config()
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "listen failed", err)
	}

	s.mu.Lock()
	s.listener[sch.ID()] = ln
	s.mu.Unlock()

	if s.events.Launched != nil {
		host, port := splitHostPort(ln.Addr())
		s.events.Launched(host.String(), port)
	}

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
			go s.acceptStream(sch, cfg, conn)
		}
	}()
	return nil
}

func (s *Server) acceptStream(sch *scheme.Scheme, cfg scheme.Config, conn net.Conn) {
	peer, ok := s.acceptGate(conn.RemoteAddr(), sch.ID())
	if !ok {
		_ = conn.Close()
		return
	}

	var eng engine.Engine
	if cfg.Sonet == netproto.SonetTLS && s.tls != nil {
		tc := engine.NewTLS(conn, s.tls)
		if err := tc.Handshake(context.Background()); err != nil {
			s.emitError(xerrors.CodeAccept, err)
			_ = conn.Close()
			return
		}
		eng = tc
	} else if tcpConn, ok := conn.(*net.TCPConn); ok {
		eng = engine.NewTCP(tcpConn)
	} else {
		s.emitError(xerrors.CodeAccept, fmt.Errorf("server: unexpected conn type %T", conn))
		_ = conn.Close()
		return
	}

	ka := cfg.KeepAlive
	if err := eng.KeepAlive(time.Duration(ka.Idle)*time.Second, ka.Cnt, ka.Intvl); err != nil {
		s.emitError(xerrors.CodeAccept, err)
	}

	s.finishAccept(sch, eng, peer)
}

func (s *Server) startSCTP(ctx context.Context, sch *scheme.Scheme) error {
	cfg := sch.Config()
	ln, err := engine.ListenSCTP(netAddr(cfg))
	if err != nil {
		return xerrors.New(xerrors.CodeStart, "sctp listen failed", err)
	}

	s.mu.Lock()
	s.listener[sch.ID()] = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := ln.AcceptSCTP()
			if err != nil {
				if !s.running.Load() {
					return
				}
				s.emitError(xerrors.CodeAccept, err)
				continue
			}
			peer, ok := s.acceptGate(conn.RemoteAddr(), sch.ID())
			if !ok {
				_ = conn.Close()
				continue
			}
			s.finishAccept(sch, engine.NewSCTP(conn), peer)
		}
	}()
	return nil
}

func netAddr(cfg scheme.Config) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
}

// Stop shuts the server down in the order spec.md §4.5 prescribes: for each
// scheme, close every broker (disconnect fires), then close the listening
// socket.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	listeners := make([]closerIface, 0, len(s.listener))
	for _, l := range s.listener {
		listeners = append(listeners, l)
	}
	schemes := make([]*scheme.Scheme, 0, len(s.schemes))
	for _, sch := range s.schemes {
		schemes = append(schemes, sch)
	}
	s.mu.Unlock()

	for _, sch := range schemes {
		sch.CloseAll()
	}
	for _, l := range listeners {
		_ = l.Close()
	}

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()

	select {
	case <-done:
	case <-ctx.Done():
	}
	return nil
}
