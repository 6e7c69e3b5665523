// Package eventlog keeps the ordered history of scoring actions for the
// selected match. It is owned by the reconciler session and is not safe
// for concurrent use.
package eventlog

import (
	"slices"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

// Log is append-only between resyncs. Entries are stored oldest first.
type Log struct {
	entries []match.ScoringEvent
	seen    map[int64]struct{}
}

func New() *Log {
	return &Log{seen: make(map[int64]struct{})}
}

// Append adds e to the tail unless its sequence id is already logged.
// Events without a backend id cannot be de-duplicated and are always kept.
// An identified event that matches an unidentified entry by content is the
// same action reported twice: the entry takes the id and nothing is added.
func (l *Log) Append(e match.ScoringEvent) bool {
	if e.SequenceID != 0 {
		if _, dup := l.seen[e.SequenceID]; dup {
			return false
		}
		l.seen[e.SequenceID] = struct{}{}
		if i := l.unidentified(e); i >= 0 {
			l.entries[i].SequenceID = e.SequenceID
			return false
		}
	}
	l.entries = append(l.entries, e)
	return true
}

// unidentified returns the oldest id-less entry describing the same action
// as e, or -1.
func (l *Log) unidentified(e match.ScoringEvent) int {
	return slices.IndexFunc(l.entries, func(x match.ScoringEvent) bool {
		return x.SequenceID == 0 && sameAction(x, e)
	})
}

func sameAction(a, b match.ScoringEvent) bool {
	if a.Kind != b.Kind || a.Side != b.Side || a.ClockLabel != b.ClockLabel {
		return false
	}
	if a.ActorID != nil && b.ActorID != nil {
		return *a.ActorID == *b.ActorID
	}
	return a.ActorName == b.ActorName
}

// Identified reports whether every event carries a backend id. A list that
// does not can only be applied with Replace.
func Identified(events []match.ScoringEvent) bool {
	return !slices.ContainsFunc(events, func(e match.ScoringEvent) bool { return e.SequenceID == 0 })
}

// Merge appends every event from a snapshot that is not logged yet and
// returns how many were added. It never removes entries.
func (l *Log) Merge(events []match.ScoringEvent) int {
	added := 0
	for _, e := range events {
		if e.SequenceID == 0 {
			continue
		}
		if l.Append(e) {
			added++
		}
	}
	return added
}

// Replace swaps the whole log for the backend's authoritative list.
// Used after an undo, where the backend may remove more than the tail
// entry, and for snapshots whose events carry no ids.
func (l *Log) Replace(events []match.ScoringEvent) {
	l.entries = nil
	clear(l.seen)
	for _, e := range events {
		if e.SequenceID != 0 {
			if _, dup := l.seen[e.SequenceID]; dup {
				continue
			}
			l.seen[e.SequenceID] = struct{}{}
		}
		l.entries = append(l.entries, e)
	}
}

// Clear drops everything; called when the selected match changes.
func (l *Log) Clear() {
	l.entries = nil
	clear(l.seen)
}

func (l *Log) Len() int { return len(l.entries) }

// Entries returns a copy, oldest first.
func (l *Log) Entries() []match.ScoringEvent {
	return slices.Clone(l.entries)
}

// Newest returns a copy, newest first, for history display.
func (l *Log) Newest() []match.ScoringEvent {
	out := slices.Clone(l.entries)
	slices.Reverse(out)
	return out
}
