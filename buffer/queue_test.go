package buffer_test

import (
	"context"
	"time"

	"github.com/anyks/awh-sub001/buffer"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Queue", func() {
	It("delivers pushed messages in order", func() {
		q := buffer.NewQueue(0)
		ctx := context.Background()

		Expect(q.Push(ctx, []byte("a"))).To(BeTrue())
		Expect(q.Push(ctx, []byte("b"))).To(BeTrue())

		m1, ok1 := q.Pop(ctx)
		Expect(ok1).To(BeTrue())
		Expect(string(m1)).To(Equal("a"))

		m2, ok2 := q.Pop(ctx)
		Expect(ok2).To(BeTrue())
		Expect(string(m2)).To(Equal("b"))
	})

	It("blocks Push until capacity frees up", func() {
		q := buffer.NewQueue(4)
		ctx := context.Background()

		Expect(q.Push(ctx, []byte("abcd"))).To(BeTrue())

		pushed := make(chan bool, 1)
		go func() {
			pushed <- q.Push(ctx, []byte("ef"))
		}()

		Consistently(pushed, 100*time.Millisecond).ShouldNot(Receive())

		_, ok := q.Pop(ctx)
		Expect(ok).To(BeTrue())

		Eventually(pushed, time.Second).Should(Receive(BeTrue()))
	})

	It("unblocks Pop when the context is cancelled", func() {
		q := buffer.NewQueue(0)
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		_, ok := q.Pop(ctx)
		Expect(ok).To(BeFalse())
	})
})
