// Package loop implements the single-threaded readiness reactor (spec.md
// C1). Go's runtime netpoller already plays the role of the OS-level
// readiness multiplexer, so Loop's job is narrower than the C++ source's
// epoll/kqueue wrapper: it is the single goroutine that every broker
// callback, timer firing and re-arm request is funneled through, so that
// "callbacks run on the loop thread only" and "handlers never called
// recursively for the same fd+method" hold exactly as specified.
//
// Grounded on original_source/include/events/fds.hpp (register/unregister by
// method) and include/sys/chrono.hpp (timer scheduling).
package loop

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Method is the readiness interest a caller can register for. The core only
// ever arms Read/Write independently (spec.md §4.1); Connect/Timeout related
// bookkeeping lives in broker.
type Method uint8

const (
	Read Method = iota
	Write
)

// Task is a unit of work executed on the loop goroutine.
type Task func()

// TimerID identifies a scheduled timer for cancellation.
type TimerID uint64

type timerEntry struct {
	id       TimerID
	deadline time.Time
	period   time.Duration // 0 for one-shot
	fn       Task
	index    int
	canceled bool
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *timerHeap) Push(x interface{}) { e := x.(*timerEntry); e.index = len(*h); *h = append(*h, e) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// Loop is a single-goroutine command queue plus timer wheel.
type Loop struct {
	mu      sync.Mutex
	timers  timerHeap
	byID    map[TimerID]*timerEntry
	nextID  TimerID
	tasks   chan Task
	wake    chan struct{}
	cancel  context.CancelFunc
	ctx     context.Context
	done    chan struct{}
	started bool
}

// New returns an unstarted Loop.
func New() *Loop {
	ctx, cancel := context.WithCancel(context.Background())
	return &Loop{
		byID:   make(map[TimerID]*timerEntry),
		tasks:  make(chan Task, 1024),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Run drives the loop until Stop is called. It is meant to be invoked from
// its own goroutine by the owning reactor (spec.md: "run forever or until
// stopped").
func (l *Loop) Run() {
	defer close(l.done)

	for {
		var timerC <-chan time.Time
		var fire *timerEntry
		var t *time.Timer

		l.mu.Lock()
		if len(l.timers) > 0 {
			next := l.timers[0]
			d := time.Until(next.deadline)
			if d < 0 {
				d = 0
			}
			t = time.NewTimer(d)
			timerC = t.C
			fire = next
		}
		l.mu.Unlock()

		select {
		case <-l.ctx.Done():
			if t != nil {
				t.Stop()
			}
			return
		case task := <-l.tasks:
			task()
		case <-l.wake:
			// a new timer may have been scheduled with an earlier deadline
		case <-timerC:
			l.fireTimer(fire)
		}
		if t != nil && timerC != nil {
			t.Stop()
		}
	}
}

// Stop unblocks Run and waits for it to return.
func (l *Loop) Stop() {
	l.cancel()
	<-l.done
}

// Post enqueues a task to run on the loop goroutine. Re-arming a method from
// within its own callback is legal (spec.md §4.1) because Post never blocks
// the caller on loop execution.
func (l *Loop) Post(t Task) {
	select {
	case l.tasks <- t:
	case <-l.ctx.Done():
	}
}

// After schedules a one-shot timer fn to run on the loop goroutine after d.
func (l *Loop) After(d time.Duration, fn Task) TimerID {
	return l.schedule(d, 0, fn)
}

// Every schedules a periodic timer, re-armed after every firing until
// Cancel is called.
func (l *Loop) Every(d time.Duration, fn Task) TimerID {
	return l.schedule(d, d, fn)
}

func (l *Loop) schedule(delay, period time.Duration, fn Task) TimerID {
	l.mu.Lock()
	l.nextID++
	id := l.nextID
	e := &timerEntry{id: id, deadline: time.Now().Add(delay), period: period, fn: fn}
	heap.Push(&l.timers, e)
	l.byID[id] = e
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return id
}

// Cancel cancels a scheduled timer. Canceling a timer whose callback is
// currently executing is a no-op: the callback finishes (spec.md §4.1).
func (l *Loop) Cancel(id TimerID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e, ok := l.byID[id]; ok {
		e.canceled = true
		delete(l.byID, id)
	}
}

func (l *Loop) fireTimer(e *timerEntry) {
	l.mu.Lock()
	if len(l.timers) == 0 || l.timers[0] != e {
		l.mu.Unlock()
		return
	}
	heap.Pop(&l.timers)
	canceled := e.canceled
	if !canceled && e.period > 0 {
		e.deadline = time.Now().Add(e.period)
		heap.Push(&l.timers, e)
	} else {
		delete(l.byID, e.id)
	}
	l.mu.Unlock()

	if !canceled {
		e.fn()
	}
}
