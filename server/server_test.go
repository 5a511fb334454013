package server_test

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/internal/duration"
	"github.com/anyks/awh-sub001/internal/netproto"
	"github.com/anyks/awh-sub001/scheme"
	"github.com/anyks/awh-sub001/server"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestServer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Server Suite")
}

var _ = Describe("TCP server", func() {
	It("accepts a connection, echoes bytes, and fires connect/disconnect", func() {
		var connected, disconnected int
		launched := make(chan int, 1)

		srv, err := server.New(scheme.Config{
			Host:        "127.0.0.1",
			Port:        0,
			Sonet:       netproto.SonetTCP,
			Total:       10,
			WaitMessage: duration.Seconds(0),
		}, func(c server.Context) {
			buf := make([]byte, 16)
			n, err := c.Read(buf)
			if err != nil {
				return
			}
			_, _ = c.Write(buf[:n])
		}, server.Events{
			Launched:   func(host string, port int) { launched <- port },
			Connect:    func(bid broker.ID, sid uint64) { connected++ },
			Disconnect: func(bid broker.ID, sid uint64) { disconnected++ },
		}, nil)
		Expect(err).ToNot(HaveOccurred())

		ctx := context.Background()
		Expect(srv.Start(ctx)).To(Succeed())
		defer func() { _ = srv.Stop(ctx) }()

		var port int
		Eventually(launched, time.Second).Should(Receive(&port))

		conn, err := net.Dial("tcp", "127.0.0.1:"+strconv.Itoa(port))
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		_, err = conn.Write([]byte("hello"))
		Expect(err).ToNot(HaveOccurred())

		buf := make([]byte, 16)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, err := conn.Read(buf)
		Expect(err).ToNot(HaveOccurred())
		Expect(string(buf[:n])).To(Equal("hello"))

		Eventually(func() int { return connected }).Should(Equal(1))

		_ = conn.Close()
		Eventually(func() int { return disconnected }, time.Second).Should(Equal(1))
	})
})
