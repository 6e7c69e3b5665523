package eventlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

func ev(seq int64, kind match.EventKind) match.ScoringEvent {
	return match.ScoringEvent{SequenceID: seq, Kind: kind, Side: match.Side1, ActorName: "p", ClockLabel: "0'"}
}

func TestAppendRejectsDuplicateSequence(t *testing.T) {
	l := New()
	require.True(t, l.Append(ev(10, match.KindGoal)))
	assert.False(t, l.Append(ev(10, match.KindGoal)))
	assert.Equal(t, 1, l.Len())
}

func TestAppendWithoutSequenceAlwaysKept(t *testing.T) {
	l := New()
	l.Append(ev(0, match.KindGoal))
	l.Append(ev(0, match.KindGoal))
	assert.Equal(t, 2, l.Len())
}

func TestOrderingNewestLast(t *testing.T) {
	l := New()
	l.Append(ev(1, match.KindGoal))
	l.Append(ev(2, match.KindYellowCard))
	l.Append(ev(3, match.KindRedCard))

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, int64(1), entries[0].SequenceID)
	assert.Equal(t, int64(3), entries[2].SequenceID)

	newest := l.Newest()
	assert.Equal(t, int64(3), newest[0].SequenceID)
	assert.Equal(t, int64(1), newest[2].SequenceID)

	// copies must not alias the log
	entries[0].ActorName = "changed"
	assert.Equal(t, "p", l.Entries()[0].ActorName)
}

func TestMergeOnlyGrows(t *testing.T) {
	l := New()
	l.Append(ev(1, match.KindGoal))
	l.Append(ev(2, match.KindGoal))

	added := l.Merge([]match.ScoringEvent{ev(1, match.KindGoal), ev(3, match.KindGoal)})
	assert.Equal(t, 1, added)
	assert.Equal(t, 3, l.Len())

	// a stale snapshot that lacks entry 3 does not shrink the log
	l.Merge([]match.ScoringEvent{ev(1, match.KindGoal)})
	assert.Equal(t, 3, l.Len())
}

func TestReplaceIsResyncNotPop(t *testing.T) {
	l := New()
	a, b, c := ev(1, match.KindGoal), ev(2, match.KindYellowCard), ev(3, match.KindGoal)
	l.Append(a)
	l.Append(b)
	l.Append(c)

	l.Replace([]match.ScoringEvent{a, b})
	assert.Equal(t, []match.ScoringEvent{a, b}, l.Entries())
	assert.True(t, l.Append(c), "a removed id is accepted again")

	// backend removed b and c together
	l.Replace([]match.ScoringEvent{a})
	assert.Equal(t, []match.ScoringEvent{a}, l.Entries())
	assert.True(t, l.Append(c), "replaced ids must be accepted again")
}

func TestClear(t *testing.T) {
	l := New()
	l.Append(ev(1, match.KindGoal))
	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Entries())
	assert.True(t, l.Append(ev(1, match.KindGoal)))
}

func TestIdentifiedEventAdoptsMatchingUnnumberedEntry(t *testing.T) {
	l := New()
	require.True(t, l.Append(ev(0, match.KindGoal)))
	require.True(t, l.Append(ev(0, match.KindYellowCard)))

	assert.False(t, l.Append(ev(7, match.KindGoal)), "same goal reported with its id")
	assert.False(t, l.Append(ev(7, match.KindGoal)))
	require.Equal(t, 2, l.Len())
	assert.Equal(t, int64(7), l.Entries()[0].SequenceID)

	other := ev(8, match.KindGoal)
	other.ClockLabel = "9'"
	assert.True(t, l.Append(other), "different clock is a different goal")
	assert.Equal(t, 3, l.Len())
}

func TestIdentified(t *testing.T) {
	assert.True(t, Identified(nil))
	assert.True(t, Identified([]match.ScoringEvent{ev(1, match.KindGoal)}))
	assert.False(t, Identified([]match.ScoringEvent{ev(1, match.KindGoal), ev(0, match.KindGoal)}))
}

func TestReplaceKeepsUnnumberedEntries(t *testing.T) {
	l := New()
	l.Append(ev(5, match.KindGoal))
	l.Replace([]match.ScoringEvent{ev(0, match.KindGoal), ev(0, match.KindGoal)})
	assert.Equal(t, 2, l.Len())
	assert.True(t, l.Append(ev(2, match.KindRedCard)), "real ids never collide with unnumbered entries")
}
