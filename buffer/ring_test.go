package buffer_test

import (
	"testing"

	"github.com/anyks/awh-sub001/buffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBuffer(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Buffer Suite")
}

var _ = Describe("Ring", func() {
	It("appends and pops in FIFO order", func() {
		r := buffer.New(16)
		r.Append([]byte("hello "))
		r.Append([]byte("world"))

		Expect(r.Size()).To(Equal(11))
		Expect(string(r.Bytes())).To(Equal("hello world"))

		n := r.Pop(6)
		Expect(n).To(Equal(6))
		Expect(string(r.Bytes())).To(Equal("world"))
	})

	It("reports size as pushes minus pops", func() {
		r := buffer.New(8)
		pushed := 0
		for i := 0; i < 5; i++ {
			p := []byte{byte(i), byte(i), byte(i)}
			r.Append(p)
			pushed += len(p)
		}
		popped := r.Pop(6)
		Expect(r.Size()).To(Equal(pushed - popped))
	})

	It("becomes empty exactly when all pushed bytes are popped", func() {
		r := buffer.New(8)
		r.Append([]byte("abcdef"))
		Expect(r.Empty()).To(BeFalse())
		r.Pop(6)
		Expect(r.Empty()).To(BeTrue())
	})

	It("clamps Pop to the available size", func() {
		r := buffer.New(8)
		r.Append([]byte("ab"))
		n := r.Pop(100)
		Expect(n).To(Equal(2))
		Expect(r.Empty()).To(BeTrue())
	})

	It("clear releases all staged bytes", func() {
		r := buffer.New(8)
		r.Append([]byte("abcdef"))
		r.Clear()
		Expect(r.Size()).To(Equal(0))
		Expect(r.Empty()).To(BeTrue())
	})
})
