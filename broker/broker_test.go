package broker_test

import (
	"net"
	"testing"
	"time"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/internal/duration"
	"github.com/anyks/awh-sub001/loop"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBroker(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Broker Suite")
}

func loopbackPair() (*engine.TCP, func()) {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	dial, _ := net.Dial("tcp", ln.Addr().String())
	srv := <-accepted
	return engine.NewTCP(srv.(*net.TCPConn)), func() {
		_ = ln.Close()
		_ = srv.Close()
		_ = dial.Close()
	}
}

var _ = Describe("Broker lifecycle", func() {
	It("allocates unique, never-reused ids", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		l := loop.New()

		b1 := broker.New(1, eng, broker.Peer{}, l)
		b2 := broker.New(1, eng, broker.Peer{}, l)
		Expect(b1.ID()).ToNot(Equal(b2.ID()))
	})

	It("moves NEW -> ACCEPTED -> CONNECTED and arms read", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		l := loop.New()

		b := broker.New(1, eng, broker.Peer{}, l)
		Expect(b.Accept()).To(BeTrue())
		Expect(b.Connected()).To(BeTrue())
		Expect(b.ReadArmed()).To(BeTrue())
	})

	It("closes exactly once and ends in CLOSED", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		l := loop.New()

		b := broker.New(1, eng, broker.Peer{}, l)
		b.Accept()
		b.Connected()

		b.Stop()
		Expect(b.IsClosed()).To(BeTrue())

		// Idempotent: a second Stop must not panic or change behavior.
		b.Stop()
		Expect(b.IsClosed()).To(BeTrue())
	})

	It("disables idle timeout when WaitTimeout is zero", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		l := loop.New()
		go l.Run()
		defer l.Stop()

		b := broker.New(1, eng, broker.Peer{}, l)
		b.SetWaitTimeout(0)

		fired := make(chan struct{}, 1)
		b.ArmIdleTimer(func() { fired <- struct{}{} })

		Consistently(fired, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("fires the idle timer after WaitTimeout of silence", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		l := loop.New()
		go l.Run()
		defer l.Stop()

		b := broker.New(1, eng, broker.Peer{}, l)
		b.SetWaitTimeout(duration.Seconds(0)) // overridden below by SetWaitTimeout(1)

		fired := make(chan struct{}, 1)
		b.SetWaitTimeout(1)
		_ = duration.Seconds(1)
		b.ArmIdleTimer(func() { fired <- struct{}{} })

		Eventually(fired, 2*time.Second).Should(Receive())
	})

	It("installs per-direction bandwidth limiters and leaves them nil when unset", func() {
		eng, cleanup := loopbackPair()
		defer cleanup()
		b := broker.New(1, eng, broker.Peer{}, nil)

		Expect(b.LimiterRx()).To(BeNil())
		Expect(b.LimiterTx()).To(BeNil())

		b.SetBandwidth(1024, 0)
		Expect(b.LimiterRx()).NotTo(BeNil())
		Expect(b.LimiterTx()).To(BeNil())

		b.SetBandwidth(0, 0)
		Expect(b.LimiterRx()).To(BeNil())
	})
})
