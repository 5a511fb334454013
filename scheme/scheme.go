package scheme

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/anyks/awh-sub001/broker"
)

var idSeq uint64

// NextID allocates the next process-wide unique scheme id.
func NextID() uint64 {
	return atomic.AddUint64(&idSeq, 1)
}

// Scheme is a listening endpoint plus its configuration and the set of
// brokers accepted through it (spec.md C4).
type Scheme struct {
	id  uint64
	cfg Config

	mu      sync.RWMutex
	brokers map[broker.ID]*broker.Broker
}

// New creates a scheme with the given configuration, unbound (not yet
// started/listening — that is server's job).
func New(cfg Config) *Scheme {
	return &Scheme{
		id:      NextID(),
		cfg:     cfg,
		brokers: make(map[broker.ID]*broker.Broker),
	}
}

// ID returns the scheme's stable id.
func (s *Scheme) ID() uint64 { return s.id }

// Config returns a copy of the scheme's configuration.
func (s *Scheme) Config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// SetTotal updates the enforced broker cap at runtime.
func (s *Scheme) SetTotal(n int) {
	s.mu.Lock()
	s.cfg.Total = n
	s.mu.Unlock()
}

// Count returns the number of brokers currently owned by this scheme.
func (s *Scheme) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.brokers)
}

// ErrTotalExceeded is returned by TryAdd when the scheme's total cap would be
// exceeded.
type ErrTotalExceeded struct {
	Total int
}

func (e *ErrTotalExceeded) Error() string {
	return fmt.Sprintf("scheme: cannot exceed maximum of %d connections", e.Total)
}

// TryAdd admits b into the scheme's broker set, strictly enforcing Total
// (spec.md §3, §8: "|brokers(s)| <= N at every observable instant"). The
// check-and-insert happens under one lock so no two concurrent accepts can
// both observe room for the last slot.
func (s *Scheme) TryAdd(b *broker.Broker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.brokers) >= s.cfg.Total {
		return &ErrTotalExceeded{Total: s.cfg.Total}
	}
	s.brokers[b.ID()] = b
	return nil
}

// Get returns the broker with the given id, if owned by this scheme.
func (s *Scheme) Get(id broker.ID) (*broker.Broker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.brokers[id]
	return b, ok
}

// Remove drops a broker from the scheme's set without closing it; callers
// close first, then Remove (or use CloseBroker which does both atomically).
func (s *Scheme) Remove(id broker.ID) {
	s.mu.Lock()
	delete(s.brokers, id)
	s.mu.Unlock()
}

// CloseBroker closes and removes a broker from the scheme in one step.
func (s *Scheme) CloseBroker(id broker.ID) {
	s.mu.Lock()
	b, ok := s.brokers[id]
	delete(s.brokers, id)
	s.mu.Unlock()

	if ok {
		b.Stop()
	}
}

// Each calls fn for every broker currently owned by the scheme. fn must not
// mutate the scheme's broker set; use CloseAll to close every broker.
func (s *Scheme) Each(fn func(*broker.Broker)) {
	s.mu.RLock()
	snapshot := make([]*broker.Broker, 0, len(s.brokers))
	for _, b := range s.brokers {
		snapshot = append(snapshot, b)
	}
	s.mu.RUnlock()

	for _, b := range snapshot {
		fn(b)
	}
}

// CloseAll closes every broker owned by the scheme, in arbitrary order
// (spec.md §3: "Removing a scheme implies closing every broker it owns in
// arbitrary order"), then clears the broker set.
func (s *Scheme) CloseAll() {
	s.mu.Lock()
	snapshot := make([]*broker.Broker, 0, len(s.brokers))
	for _, b := range s.brokers {
		snapshot = append(snapshot, b)
	}
	s.brokers = make(map[broker.ID]*broker.Broker)
	s.mu.Unlock()

	for _, b := range snapshot {
		b.Stop()
	}
}
