package event_test

import (
	"github.com/anyks/awh-sub001/event"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OnBound", func() {
	It("binds arguments now and applies them at call time", func() {
		c := event.New()
		var got int

		add := func(a, b int) { got = a + b }
		event.OnBound(c, "sum", add, 2, 3)

		ok := event.Call[func()](c, "sum", func(fn func()) { fn() })
		Expect(ok).To(BeTrue())
		Expect(got).To(Equal(5))
	})

	It("re-binds fresh arguments on every OnBound call, overwriting the previous partial application", func() {
		c := event.New()
		var got string
		greet := func(name string) { got = "hi " + name }

		event.OnBound(c, "greet", greet, "alice")
		event.Call[func()](c, "greet", func(fn func()) { fn() })
		Expect(got).To(Equal("hi alice"))

		event.OnBound(c, "greet", greet, "bob")
		event.Call[func()](c, "greet", func(fn func()) { fn() })
		Expect(got).To(Equal("hi bob"))
	})

	It("binds the zero value for a nil argument", func() {
		c := event.New()
		var got string
		f := func(s string) { got = s }

		event.OnBound(c, "zero", f, nil)
		event.Call[func()](c, "zero", func(fn func()) { fn() })
		Expect(got).To(Equal(""))
	})
})
