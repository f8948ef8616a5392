// Package auth holds the console's authentication state: whether a wallet
// session is connected, its identity, and a generation counter that moves on
// every transition so in-flight work can tell it has gone stale.
package auth

import (
	"sync"

	"github.com/gagliardetto/solana-go"
)

// Snapshot is an immutable view of the authentication state.
type Snapshot struct {
	Authenticated bool
	Identity      solana.PublicKey
	Generation    uint64
}

// Current reports whether s still describes the state at generation gen.
func (s Snapshot) Current(gen uint64) bool {
	return s.Generation == gen
}

// State is the read side. It is safe for concurrent use.
type State struct {
	mu     sync.RWMutex
	snap   Snapshot
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Writer is the only way to change a State. Exactly one component owns it.
type Writer struct {
	state *State
}

// New returns an unauthenticated State and its Writer.
func New() (*State, *Writer) {
	s := &State{}
	return s, &Writer{state: s}
}

// Snapshot returns the current state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// IsAuthenticated reports whether a wallet session is connected.
func (s *State) IsAuthenticated() bool {
	return s.Snapshot().Authenticated
}

// Generation returns the current generation.
func (s *State) Generation() uint64 {
	return s.Snapshot().Generation
}

// Subscribe registers fn to run after every transition, in registration
// order, on the writer's goroutine. The returned func unregisters it.
func (s *State) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// Set records a transition. Setting the state it already holds is a no-op
// and returns false.
func (w *Writer) Set(authenticated bool, identity solana.PublicKey) bool {
	s := w.state
	if !authenticated {
		identity = solana.PublicKey{}
	}

	s.mu.Lock()
	if s.snap.Authenticated == authenticated && s.snap.Identity.Equals(identity) {
		s.mu.Unlock()
		return false
	}
	s.snap = Snapshot{
		Authenticated: authenticated,
		Identity:      identity,
		Generation:    s.snap.Generation + 1,
	}
	snap := s.snap
	subs := make([]subscriber, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}

// State returns the State this writer mutates.
func (w *Writer) State() *State {
	return w.state
}
