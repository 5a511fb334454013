// Package reactor implements the reactor core / Node (spec.md C5): it owns
// schemes, indexes brokers by id, and exposes send/read/write/close plus the
// send-queue backpressure logic. Grounded on
// original_source/src/core/server.cpp's send/write/read triad.
package reactor

import (
	"sync"

	"github.com/anyks/awh-sub001/broker"
	"github.com/anyks/awh-sub001/buffer"
	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/event"
	"github.com/anyks/awh-sub001/scheme"
)

// SendMode selects the spec's INSTANT/DEFFER send policy (spec.md §4.4).
type SendMode uint8

const (
	// Instant writes once synchronously when the queue is empty; any
	// remainder is enqueued and WRITE is armed.
	Instant SendMode = iota
	// Deffer always enqueues and arms WRITE, never writing synchronously.
	Deffer
)

const maxWriteChunk = 64 * 1024

// Callbacks groups every application-visible event Node can raise while
// driving send/write/read. Any field left nil is simply not invoked.
type Callbacks struct {
	OnRead        func(buf []byte, n int, bid broker.ID, sid uint64)
	OnWrite       func(buf []byte, n int, bid broker.ID, sid uint64)
	OnAvailable   func(bid broker.ID, sid uint64)
	OnUnavailable func(bid broker.ID, sid uint64)
}

// Node owns schemes, a non-owning broker index, and per-broker payload
// queues / in-flight byte counters driving backpressure.
//
// Send/Write/Read mutate a broker's Ring and counters without their own
// per-broker lock: like the broker they serve, they are meant to be called
// from the single reactor loop goroutine (spec.md §4.1's "callbacks run on
// the loop thread only"). The mu mutex below only protects the node-level
// index maps (schemes/brokers/payloads/available), not the Ring contents.
type Node struct {
	mu sync.RWMutex

	schemes map[uint64]*scheme.Scheme
	brokers map[broker.ID]*scheme.Scheme // broker id -> owning scheme, for O(1) lookup

	payloads  map[broker.ID]*buffer.Ring
	available map[broker.ID]int64

	cb Callbacks
}

// New returns an empty Node.
func New(cb Callbacks) *Node {
	return &Node{
		schemes:   make(map[uint64]*scheme.Scheme),
		brokers:   make(map[broker.ID]*scheme.Scheme),
		payloads:  make(map[broker.ID]*buffer.Ring),
		available: make(map[broker.ID]int64),
		cb:        cb,
	}
}

// AddScheme registers a scheme with the node.
func (n *Node) AddScheme(s *scheme.Scheme) {
	n.mu.Lock()
	n.schemes[s.ID()] = s
	n.mu.Unlock()
}

// RemoveScheme closes every broker the scheme owns and forgets it (spec.md
// §3: "Removing a scheme implies closing every broker it owns").
func (n *Node) RemoveScheme(sid uint64) {
	n.mu.Lock()
	s, ok := n.schemes[sid]
	delete(n.schemes, sid)
	n.mu.Unlock()
	if !ok {
		return
	}

	s.Each(func(b *broker.Broker) {
		n.mu.Lock()
		delete(n.brokers, b.ID())
		delete(n.payloads, b.ID())
		delete(n.available, b.ID())
		n.mu.Unlock()
	})
	s.CloseAll()
}

// RegisterBroker indexes b as belonging to scheme sid, creating its payload
// queue and available counter.
func (n *Node) RegisterBroker(sid uint64, b *broker.Broker) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if s, ok := n.schemes[sid]; ok {
		n.brokers[b.ID()] = s
	}
	n.payloads[b.ID()] = buffer.New(0)
	n.available[b.ID()] = 0
}

// Close removes a broker from the reactor's indexes and stops it.
func (n *Node) Close(bid broker.ID) {
	n.mu.Lock()
	s, ok := n.brokers[bid]
	delete(n.brokers, bid)
	delete(n.payloads, bid)
	delete(n.available, bid)
	n.mu.Unlock()

	if ok {
		s.CloseBroker(bid)
	}
}

func (n *Node) lookup(bid broker.ID) (*scheme.Scheme, *broker.Broker, bool) {
	n.mu.RLock()
	s, ok := n.brokers[bid]
	n.mu.RUnlock()
	if !ok {
		return nil, nil, false
	}
	b, ok := s.Get(bid)
	return s, b, ok
}

func (n *Node) sendCap(s *scheme.Scheme) int {
	c := s.Config().SendQueueCap
	if c <= 0 {
		return maxWriteChunk
	}
	return c
}

// Send commits buf for delivery to bid under the given mode. It returns true
// once the bytes are either written or queued; false if the broker is
// unknown/closed or backpressure rejects the push (unavailable is raised in
// that case).
func (n *Node) Send(buf []byte, bid broker.ID, mode SendMode) bool {
	s, b, ok := n.lookup(bid)
	if !ok || b.IsClosed() {
		return false
	}

	n.mu.Lock()
	q := n.payloads[bid]
	cur := n.available[bid]
	cap := int64(n.sendCap(s))
	n.mu.Unlock()

	if cur+int64(len(buf)) > cap {
		if n.cb.OnUnavailable != nil {
			n.cb.OnUnavailable(bid, s.ID())
		}
		return false
	}

	if mode == Instant && q.Empty() {
		written, err := b.Engine().Write(buf)
		if n.cb.OnWrite != nil && written > 0 {
			n.cb.OnWrite(buf[:written], written, bid, s.ID())
		}
		if err != nil || written == len(buf) {
			return err == nil
		}
		buf = buf[written:]
	}

	q.Append(buf)
	n.mu.Lock()
	n.available[bid] = n.available[bid] + int64(len(buf))
	n.mu.Unlock()
	b.SetEvent(true, broker.MethodWrite)
	return true
}

// Write drains the broker's payload queue up to one max_buffer chunk; on a
// short write it leaves the remainder queued and keeps WRITE armed, on a
// full drain it disarms WRITE (spec.md §4.4).
func (n *Node) Write(bid broker.ID) {
	s, b, ok := n.lookup(bid)
	if !ok || b.IsClosed() {
		return
	}

	n.mu.Lock()
	q := n.payloads[bid]
	n.mu.Unlock()
	if q == nil || q.Empty() {
		b.SetEvent(false, broker.MethodWrite)
		return
	}

	chunk := q.Bytes()
	if len(chunk) > maxWriteChunk {
		chunk = chunk[:maxWriteChunk]
	}

	written, err := b.Engine().Write(chunk)
	if written > 0 {
		q.Pop(written)
		n.mu.Lock()
		n.available[bid] -= int64(written)
		low := n.available[bid]
		n.mu.Unlock()

		if n.cb.OnWrite != nil {
			n.cb.OnWrite(chunk[:written], written, bid, s.ID())
		}
		if low <= int64(n.sendCap(s))/2 && n.cb.OnAvailable != nil {
			n.cb.OnAvailable(bid, s.ID())
		}
	}

	if err != nil && engine.Classify(err) == engine.ClassFatal {
		n.Close(bid)
		return
	}

	if q.Empty() {
		b.SetEvent(false, broker.MethodWrite)
	}
}

// Read loops engine.Read until Again or EOF, dispatching each chunk to
// OnRead. Clears the idle timer after the first chunk and re-arms it once
// the loop ends, if WaitTimeout > 0 (spec.md §4.4).
func (n *Node) Read(bid broker.ID) {
	s, b, ok := n.lookup(bid)
	if !ok || b.IsClosed() {
		return
	}

	buf := make([]byte, 64*1024)
	first := true

	for {
		readN, err := b.Engine().Read(buf)
		if readN > 0 {
			if first {
				b.ClearIdleTimer()
				first = false
			}
			if n.cb.OnRead != nil {
				n.cb.OnRead(buf[:readN], readN, bid, s.ID())
			}
		}

		switch engine.Classify(err) {
		case engine.ClassAgain:
			goto done
		case engine.ClassEOF:
			n.Close(bid)
			return
		case engine.ClassFatal:
			n.Close(bid)
			return
		default:
			if err != nil {
				goto done
			}
		}
		if readN == 0 && err == nil {
			goto done
		}
	}

done:
	if !first {
		b.ClearIdleTimer()
	}
	event.OnBound(b.Events(), eventIdleClose, n.Close, bid)
	b.ArmIdleTimer(func() {
		event.Call[func()](b.Events(), eventIdleClose, func(fn func()) { fn() })
	})
}

// eventIdleClose names the broker-local callback bound with the broker's own
// id every time its idle timer is (re)armed (see Read above).
const eventIdleClose = "idle-close"

// Available returns the current in-flight byte count for a broker.
func (n *Node) Available(bid broker.ID) int64 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.available[bid]
}

// QueueSize returns the number of unsent bytes staged for a broker.
func (n *Node) QueueSize(bid broker.ID) int {
	n.mu.RLock()
	q := n.payloads[bid]
	n.mu.RUnlock()
	if q == nil {
		return 0
	}
	return q.Size()
}
