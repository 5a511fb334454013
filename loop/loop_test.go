package loop_test

import (
	"testing"
	"time"

	"github.com/anyks/awh-sub001/loop"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestLoop(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Loop Suite")
}

var _ = Describe("Loop", func() {
	It("runs posted tasks on the loop goroutine", func() {
		l := loop.New()
		go l.Run()
		defer l.Stop()

		done := make(chan struct{})
		l.Post(func() { close(done) })

		Eventually(done, time.Second).Should(BeClosed())
	})

	It("fires a one-shot timer once", func() {
		l := loop.New()
		go l.Run()
		defer l.Stop()

		fired := make(chan struct{}, 2)
		l.After(20*time.Millisecond, func() { fired <- struct{}{} })

		Eventually(fired, time.Second).Should(Receive())
		Consistently(fired, 100*time.Millisecond).ShouldNot(Receive())
	})

	It("fires a periodic timer repeatedly until cancelled", func() {
		l := loop.New()
		go l.Run()
		defer l.Stop()

		count := make(chan struct{}, 100)
		id := l.Every(10*time.Millisecond, func() { count <- struct{}{} })

		Eventually(func() int { return len(count) }, time.Second).Should(BeNumerically(">=", 3))
		l.Cancel(id)

		n := len(count)
		time.Sleep(50 * time.Millisecond)
		Expect(len(count)).To(BeNumerically("<=", n+1))
	})

	It("stop unblocks Run", func() {
		l := loop.New()
		runDone := make(chan struct{})
		go func() {
			l.Run()
			close(runDone)
		}()

		l.Stop()
		Eventually(runDone, time.Second).Should(BeClosed())
	})
})
