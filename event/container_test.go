package event_test

import (
	"testing"

	"github.com/anyks/awh-sub001/event"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestEvent(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Event Suite")
}

var _ = Describe("Container", func() {
	It("stores and calls a typed handler", func() {
		c := event.New()
		var got string

		event.On[func(string)](c, "read", func(s string) { got = s })

		ok := event.Call[func(string)](c, "read", func(fn func(string)) { fn("ping") })
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal("ping"))
	})

	It("returns false for unknown names", func() {
		c := event.New()
		ok := event.Call[func()](c, "missing", func(fn func()) { fn() })
		Expect(ok).To(BeFalse())
	})

	It("erases bindings and reports existence", func() {
		c := event.New()
		c.Set("close", func() {})
		Expect(c.Erase("close")).To(BeTrue())
		Expect(c.Erase("close")).To(BeFalse())

		_, ok := c.Get("close")
		Expect(ok).To(BeFalse())
	})

	It("notifies the observer on SET, DEL and RUN", func() {
		c := event.New()
		var seen []event.Action
		c.OnObserve(func(id uint64, name string, a event.Action) {
			seen = append(seen, a)
		})

		c.Set("connect", func() {})
		event.Call[func()](c, "connect", func(fn func()) { fn() })
		c.Erase("connect")

		Expect(seen).To(Equal([]event.Action{event.ActionSet, event.ActionRun, event.ActionDel}))
	})

	It("swaps a binding and returns the previous one", func() {
		c := event.New()
		c.Set("write", 1)
		prev, existed := c.Swap("write", 2)
		Expect(existed).To(BeTrue())
		Expect(prev).To(Equal(1))

		v, _ := c.Get("write")
		Expect(v).To(Equal(2))
	})

	It("hashes short names losslessly so ID-based and name-based lookups agree", func() {
		c := event.New()
		c.Set("cnt", "value")

		v, ok := c.GetByID(event.ID("cnt"))
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal("value"))
	})
})
