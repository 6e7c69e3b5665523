package display

import (
	"sync"
	"time"
)

// State holds per-match display flags. Bus handlers run on the publisher's
// goroutine, so callers hold the observer's lock while touching a *State.
type State struct {
	DisplayedLive bool
	Finaled       bool
	LastScore     string
	LastPrint     time.Time
}

// Tracker maps match IDs to their display state.
type Tracker struct {
	mu     sync.Mutex
	states map[int64]*State
}

func NewTracker() *Tracker {
	return &Tracker{
		states: make(map[int64]*State),
	}
}

// Get returns the display state for a match, creating one if it
// does not yet exist.
func (t *Tracker) Get(matchID int64) *State {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.states[matchID]
	if !ok {
		s = &State{}
		t.states[matchID] = s
	}
	return s
}
