package h2_test

import (
	"bytes"
	"io"
	"testing"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/anyks/awh-sub001/h2"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestH2(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "H2 Suite")
}

var _ = Describe("Session", func() {
	It("round-trips a HEADERS frame between two sessions", func() {
		var wire bytes.Buffer

		var gotHeaders []string
		var gotStream uint32
		server := h2.New(h2.ModeServer, &wire, h2.Callbacks{
			Header: func(streamID uint32, name, value string) {
				gotStream = streamID
				gotHeaders = append(gotHeaders, name+":"+value)
			},
		})
		Expect(server.Init(h2.Settings{})).To(Succeed())
		wire.Reset() // drop the SETTINGS frame just written, keep only ingress under test

		client := h2.New(h2.ModeClient, &wire, h2.Callbacks{})
		Expect(client.SendHeaders(1, []hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: "/"},
		}, true)).To(Succeed())

		Expect(server.Frame(wire.Bytes())).To(Succeed())

		Expect(gotStream).To(Equal(uint32(1)))
		Expect(gotHeaders).To(ContainElement(":method:GET"))
		Expect(gotHeaders).To(ContainElement(":path:/"))
	})

	It("writes exactly the flow-control window as one frame and drains the remainder on WINDOW_UPDATE", func() {
		var wire bytes.Buffer
		client := h2.New(h2.ModeClient, &wire, h2.Callbacks{})
		Expect(client.Init(h2.Settings{WindowSize: 4})).To(Succeed())
		wire.Reset() // drop the SETTINGS frame, only inspect what SendData writes

		data := []byte("this is more than four bytes")
		Expect(client.SendData(1, data, false)).To(Succeed())

		reader := http2.NewFramer(io.Discard, bytes.NewReader(wire.Bytes()))
		frame, err := reader.ReadFrame()
		Expect(err).NotTo(HaveOccurred())
		df, ok := frame.(*http2.DataFrame)
		Expect(ok).To(BeTrue())
		Expect(df.Data()).To(Equal(data[:4]), "only the window's worth of bytes should be written up front")

		_, err = reader.ReadFrame()
		Expect(err).To(HaveOccurred(), "the remainder must be queued, not written, until a WINDOW_UPDATE arrives")

		wire.Reset()
		var upd bytes.Buffer
		Expect(http2.NewFramer(&upd, nil).WriteWindowUpdate(1, uint32(len(data)-4))).To(Succeed())
		Expect(client.Frame(upd.Bytes())).To(Succeed())

		reader = http2.NewFramer(io.Discard, bytes.NewReader(wire.Bytes()))
		frame, err = reader.ReadFrame()
		Expect(err).NotTo(HaveOccurred())
		df, ok = frame.(*http2.DataFrame)
		Expect(ok).To(BeTrue())
		Expect(df.Data()).To(Equal(data[4:]), "the queued remainder should be flushed once the window update arrives")
	})

	It("round-trips ALTSVC and ORIGIN frames", func() {
		var wire bytes.Buffer

		var gotOrigin, gotValue string
		var gotValues []string
		server := h2.New(h2.ModeServer, &wire, h2.Callbacks{
			Altsvc: func(streamID uint32, origin, value string) {
				gotOrigin, gotValue = origin, value
			},
			Origin: func(values []string) {
				gotValues = values
			},
		})

		client := h2.New(h2.ModeClient, &wire, h2.Callbacks{})
		Expect(client.Altsvc("example.com", `h2=":443"`)).To(Succeed())
		Expect(server.Frame(wire.Bytes())).To(Succeed())
		Expect(gotOrigin).To(Equal("example.com"))
		Expect(gotValue).To(Equal(`h2=":443"`))

		wire.Reset()
		Expect(client.Origin("https://a.example", "https://b.example")).To(Succeed())
		Expect(server.Frame(wire.Bytes())).To(Succeed())
		Expect(gotValues).To(Equal([]string{"https://a.example", "https://b.example"}))
	})

	It("fires On immediately when no submit-class call is in flight", func() {
		var wire bytes.Buffer
		s := h2.New(h2.ModeServer, &wire, h2.Callbacks{})

		fired := false
		s.On(func() { fired = true })
		Expect(fired).To(BeTrue())
	})
})
