package reactor_test

import (
	"net"
	"testing"
	"time"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/loop"
	"github.com/anyks/awh-sub001/reactor"
	"github.com/anyks/awh-sub001/scheme"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestReactor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reactor Suite")
}

// harness wires a scheme + one broker wrapping one side of a TCP loopback,
// with the peer side left for the test to read/write directly.
type harness struct {
	node *reactor.Node
	sch  *scheme.Scheme
	b    *broker.Broker
	peer net.Conn
	ln   net.Listener
}

func newHarness(cb reactor.Callbacks, sendCap int) *harness {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	peer, _ := net.Dial("tcp", ln.Addr().String())
	srv := <-accepted

	n := reactor.New(cb)
	s := scheme.New(scheme.Config{Total: 10, SendQueueCap: sendCap})
	n.AddScheme(s)

	eng := engine.NewTCP(srv.(*net.TCPConn))
	b := broker.New(s.ID(), eng, broker.Peer{}, loop.New())
	b.Accept()
	b.Connected()
	_ = s.TryAdd(b)
	n.RegisterBroker(s.ID(), b)

	return &harness{node: n, sch: s, b: b, peer: peer, ln: ln}
}

func (h *harness) close() {
	_ = h.peer.Close()
	_ = h.ln.Close()
}

var _ = Describe("Node send/write/read", func() {
	It("delivers every byte written via Send to the peer", func() {
		h := newHarness(reactor.Callbacks{}, 0)
		defer h.close()

		ok := h.node.Send([]byte("pong"), h.b.ID(), reactor.Instant)
		Expect(ok).To(BeTrue())

		buf := make([]byte, 16)
		_ = h.peer.SetReadDeadline(time.Now().Add(time.Second))
		n, err := h.peer.Read(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("pong"))
	})

	It("dispatches ingress bytes to OnRead with the input length preserved", func() {
		var got []byte
		done := make(chan struct{}, 1)
		h := newHarness(reactor.Callbacks{
			OnRead: func(buf []byte, n int, bid broker.ID, sid uint64) {
				got = append(got, buf[:n]...)
				done <- struct{}{}
			},
		}, 0)
		defer h.close()

		_, _ = h.peer.Write([]byte("ping"))

		go h.node.Read(h.b.ID())
		Eventually(done, time.Second).Should(Receive())
		Expect(string(got)).To(Equal("ping"))
	})

	It("rejects a push that would exceed the per-scheme cap and raises unavailable", func() {
		var unavailable bool
		h := newHarness(reactor.Callbacks{
			OnUnavailable: func(bid broker.ID, sid uint64) { unavailable = true },
		}, 4)
		defer h.close()

		ok := h.node.Send(make([]byte, 1000), h.b.ID(), reactor.Deffer)
		Expect(ok).To(BeFalse())
		Expect(unavailable).To(BeTrue())
	})

	It("Write drains the queue and disarms WRITE once empty", func() {
		h := newHarness(reactor.Callbacks{}, 0)
		defer h.close()

		h.node.Send([]byte("queued"), h.b.ID(), reactor.Deffer)
		Expect(h.b.WriteArmed()).To(BeTrue())

		h.node.Write(h.b.ID())

		Eventually(func() int { return h.node.QueueSize(h.b.ID()) }).Should(Equal(0))
		Expect(h.b.WriteArmed()).To(BeFalse())
	})
})
