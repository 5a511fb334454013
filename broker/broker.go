// Package broker implements the per-connection lifecycle (spec.md C3): one
// active connection, its engine, peer identity, timers and read/write/close
// callbacks.
//
// Grounded on original_source/src/core/server.cpp (broker bookkeeping) and
// include/sys/callback.hpp for the per-broker callback set.
package broker

import (
	"net"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/anyks/awh-sub001/engine"
	"github.com/anyks/awh-sub001/event"
	"github.com/anyks/awh-sub001/internal/duration"
	"github.com/anyks/awh-sub001/loop"
)

// ID uniquely identifies a broker for the process lifetime; never reused
// (spec.md §3 invariant).
type ID uint64

var idSeq uint64

// NextID allocates the next process-wide unique broker id.
func NextID() ID {
	return ID(atomic.AddUint64(&idSeq, 1))
}

// Method is the per-broker event/timeout method the reactor arms or disarms.
type Method uint8

const (
	MethodRead Method = iota
	MethodWrite
	MethodConnect
)

// Peer is the resolved identity of the remote end (spec.md §3).
type Peer struct {
	IP   net.IP
	MAC  string
	Port int
}

// Broker owns exactly one connection's engine, timers and callbacks.
type Broker struct {
	mu sync.RWMutex

	id       ID
	schemeID uint64
	eng      engine.Engine
	peer     Peer
	state    State

	enabledRead  bool
	enabledWrite bool

	waitTimeout    duration.Seconds // idle ceiling
	receiveTimeout duration.Seconds // per-message deadline

	events *event.Container

	loop       *loop.Loop
	idleTimer  loop.TimerID
	hasIdle    bool

	limiterRx *rate.Limiter
	limiterTx *rate.Limiter
}

// New creates a broker in state NEW, bound to the given reactor loop.
func New(schemeID uint64, eng engine.Engine, peer Peer, l *loop.Loop) *Broker {
	return &Broker{
		id:       NextID(),
		schemeID: schemeID,
		eng:      eng,
		peer:     peer,
		state:    StateNew,
		events:   event.New(),
		loop:     l,
	}
}

// ID returns the broker's stable 64-bit identifier.
func (b *Broker) ID() ID { return b.id }

// SchemeID returns the owning scheme's id.
func (b *Broker) SchemeID() uint64 { return b.schemeID }

// Engine returns the underlying transport engine.
func (b *Broker) Engine() engine.Engine { return b.eng }

// Peer returns the resolved remote identity.
func (b *Broker) Peer() Peer { return b.peer }

// State returns the current lifecycle state.
func (b *Broker) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// setState transitions state, silently refusing an illegal edge rather than
// panicking — callers are expected to check a guard (e.g. IsClosed) first.
func (b *Broker) setState(to State) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !canTransition(b.state, to) {
		return false
	}
	b.state = to
	return true
}

// Accept moves NEW -> ACCEPTED (or -> WAIT_HANDSHAKE for DTLS, via
// BeginHandshake).
func (b *Broker) Accept() bool { return b.setState(StateAccepted) }

// BeginHandshake moves ACCEPTED -> WAIT_HANDSHAKE.
func (b *Broker) BeginHandshake() bool { return b.setState(StateWaitHandshake) }

// Connected moves ACCEPTED/WAIT_HANDSHAKE -> CONNECTED and starts the
// broker with the reactor: arms READ (spec.md §4.3 start()).
func (b *Broker) Connected() bool {
	if !b.setState(StateConnected) {
		return false
	}
	b.SetEvent(true, MethodRead)
	return true
}

// IsClosed reports whether the broker has finished closing.
func (b *Broker) IsClosed() bool {
	return b.State() == StateClosed
}

// On binds a typed read|write|close|connect handler.
func (b *Broker) On(name string, fn interface{}) {
	b.events.Set(name, fn)
}

// Events returns the callback container for direct typed On/Call use.
func (b *Broker) Events() *event.Container { return b.events }

// SetEvent arms or disarms a method. Re-arming from within its own callback
// is legal and takes effect the next time the reactor polls (spec.md §4.1).
func (b *Broker) SetEvent(enabled bool, method Method) {
	b.mu.Lock()
	switch method {
	case MethodRead:
		b.enabledRead = enabled
	case MethodWrite:
		b.enabledWrite = enabled
	}
	b.mu.Unlock()
}

// ReadArmed / WriteArmed report the current arm state.
func (b *Broker) ReadArmed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabledRead
}

func (b *Broker) WriteArmed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.enabledWrite
}

// SetWaitTimeout sets the idle ceiling; 0 disables it (spec.md §8).
func (b *Broker) SetWaitTimeout(s duration.Seconds) {
	b.mu.Lock()
	b.waitTimeout = s
	b.mu.Unlock()
}

func (b *Broker) WaitTimeout() duration.Seconds {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.waitTimeout
}

// SetBandwidth installs per-direction token-bucket limiters (bytes/sec).
// A rate of 0 leaves that direction unmetered. Burst is set to one second's
// worth of traffic, matching the original source's buffer-sizing hooks.
func (b *Broker) SetBandwidth(rxBytesPerSec, txBytesPerSec int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rxBytesPerSec > 0 {
		b.limiterRx = rate.NewLimiter(rate.Limit(rxBytesPerSec), int(rxBytesPerSec))
	} else {
		b.limiterRx = nil
	}
	if txBytesPerSec > 0 {
		b.limiterTx = rate.NewLimiter(rate.Limit(txBytesPerSec), int(txBytesPerSec))
	} else {
		b.limiterTx = nil
	}
}

// LimiterRx/LimiterTx return the installed bandwidth limiter for that
// direction, or nil if unmetered.
func (b *Broker) LimiterRx() *rate.Limiter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limiterRx
}

func (b *Broker) LimiterTx() *rate.Limiter {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.limiterTx
}

// SetReceiveTimeout sets the per-message deadline.
func (b *Broker) SetReceiveTimeout(s duration.Seconds) {
	b.mu.Lock()
	b.receiveTimeout = s
	b.mu.Unlock()
}

// ArmIdleTimer (re)arms the receive-idle timer that closes the broker after
// WaitTimeout of silence. Called after a read loop returns (spec.md §4.4:
// "after the loop ends, a new receive-idle timer is armed if wait > 0").
func (b *Broker) ArmIdleTimer(onIdle func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasIdle {
		b.loop.Cancel(b.idleTimer)
		b.hasIdle = false
	}
	if b.waitTimeout.IsZero() || b.loop == nil {
		return
	}
	b.idleTimer = b.loop.After(b.waitTimeout.Duration(), onIdle)
	b.hasIdle = true
}

// ClearIdleTimer cancels the receive-idle timer (called after the first
// chunk of a read, spec.md §4.4).
func (b *Broker) ClearIdleTimer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.hasIdle {
		b.loop.Cancel(b.idleTimer)
		b.hasIdle = false
	}
}

// Stop unregisters all events, cancels timers and moves the broker to
// CLOSING then CLOSED. Idempotent (spec.md §8).
func (b *Broker) Stop() {
	b.mu.Lock()
	if b.state == StateClosed || b.state == StateClosing {
		b.mu.Unlock()
		return
	}
	b.state = StateClosing
	b.enabledRead = false
	b.enabledWrite = false
	if b.hasIdle {
		b.loop.Cancel(b.idleTimer)
		b.hasIdle = false
	}
	b.mu.Unlock()

	_ = b.eng.Close()

	b.mu.Lock()
	b.state = StateClosed
	b.mu.Unlock()
}
