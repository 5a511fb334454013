package scheme_test

import (
	"net"
	"testing"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/loop"
	"github.com/anyks/awh-sub001/scheme"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestScheme(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Scheme Suite")
}

func fakeBroker(schemeID uint64) *broker.Broker {
	ln, _ := net.Listen("tcp", "127.0.0.1:0")
	accepted := make(chan net.Conn, 1)
	go func() {
		c, _ := ln.Accept()
		accepted <- c
	}()
	dial, _ := net.Dial("tcp", ln.Addr().String())
	srv := <-accepted
	_ = dial
	eng := engine.NewTCP(srv.(*net.TCPConn))
	return broker.New(schemeID, eng, broker.Peer{}, loop.New())
}

var _ = Describe("Scheme", func() {
	It("enforces the total cap strictly", func() {
		s := scheme.New(scheme.Config{Total: 2})

		b1, b2, b3 := fakeBroker(s.ID()), fakeBroker(s.ID()), fakeBroker(s.ID())

		Expect(s.TryAdd(b1)).ToNot(HaveOccurred())
		Expect(s.TryAdd(b2)).ToNot(HaveOccurred())

		err := s.TryAdd(b3)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("cannot exceed maximum"))
		Expect(s.Count()).To(Equal(2))
	})

	It("rejects all accepts when Total is 0", func() {
		s := scheme.New(scheme.Config{Total: 0})
		b := fakeBroker(s.ID())

		err := s.TryAdd(b)
		Expect(err).To(HaveOccurred())
	})

	It("closes every broker on CloseAll and clears the set", func() {
		s := scheme.New(scheme.Config{Total: 10})
		b1, b2 := fakeBroker(s.ID()), fakeBroker(s.ID())
		_ = s.TryAdd(b1)
		_ = s.TryAdd(b2)

		s.CloseAll()

		Expect(s.Count()).To(Equal(0))
		Expect(b1.IsClosed()).To(BeTrue())
		Expect(b2.IsClosed()).To(BeTrue())
	})

	It("CloseBroker removes and stops in one step", func() {
		s := scheme.New(scheme.Config{Total: 10})
		b := fakeBroker(s.ID())
		_ = s.TryAdd(b)

		s.CloseBroker(b.ID())

		_, ok := s.Get(b.ID())
		Expect(ok).To(BeFalse())
		Expect(b.IsClosed()).To(BeTrue())
	})
})
