package core

import (
	"sync"
	"sync/atomic"
)

// discoverySession is one scan: a sink plus the addresses already announced.
type discoverySession struct {
	sink CandidateSink
	mu   sync.Mutex
	seen map[DeviceAddress]struct{}
}

// DiscoveryRelay turns unmatched device messages into discovery candidates
// while a scan is active.
//
// The active session is swapped through a single atomic pointer, so Offer
// never sees a half-updated sink. Each address is announced at most once
// per session.
type DiscoveryRelay struct {
	session atomic.Pointer[discoverySession]
}

// NewDiscoveryRelay creates an inactive relay.
func NewDiscoveryRelay() *DiscoveryRelay {
	return &DiscoveryRelay{}
}

// SetActive starts a new scan session that reports to sink. Any previous
// session is replaced and its seen-set discarded.
func (r *DiscoveryRelay) SetActive(sink CandidateSink) {
	if sink == nil {
		r.SetInactive()
		return
	}
	r.session.Store(&discoverySession{
		sink: sink,
		seen: make(map[DeviceAddress]struct{}),
	})
}

// SetInactive ends the current scan session.
func (r *DiscoveryRelay) SetInactive() {
	r.session.Store(nil)
}

// Active reports whether a scan session is running.
func (r *DiscoveryRelay) Active() bool {
	return r.session.Load() != nil
}

// Offer passes msg to the active session. It returns false when no session
// is active. A repeated address within the same session is absorbed
// without a second announcement.
func (r *DiscoveryRelay) Offer(msg DeviceMessage) bool {
	s := r.session.Load()
	if s == nil {
		return false
	}

	addr := msg.Address()
	s.mu.Lock()
	if _, dup := s.seen[addr]; dup {
		s.mu.Unlock()
		return true
	}
	s.seen[addr] = struct{}{}
	s.mu.Unlock()

	s.sink.OnCandidate(addr, msg.Kind())
	return true
}
