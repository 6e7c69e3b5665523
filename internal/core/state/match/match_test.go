package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := DefaultClassifier()
	assert.Equal(t, ModelSetBased, c.Classify("Badminton"))
	assert.Equal(t, ModelSetBased, c.Classify("  tennis "))
	assert.Equal(t, ModelContinuous, c.Classify("Football"))
	assert.Equal(t, ModelContinuous, c.Classify(""))
	assert.Equal(t, ModelContinuous, c.Classify("Underwater Hockey"))
}

func TestClassifierTableOverrides(t *testing.T) {
	c := NewClassifier([]string{"Table  Tennis"}, []string{"Tennis"})
	assert.Equal(t, ModelSetBased, c.Classify("table tennis"))
	assert.Equal(t, ModelContinuous, c.Classify("Tennis"))
}

func TestParseEventKind(t *testing.T) {
	for in, want := range map[string]EventKind{
		"":             KindGoal,
		"goal":         KindGoal,
		"YELLOW":       KindYellowCard,
		"red_card":     KindRedCard,
		"Substitution": KindSubstitution,
		"POINT":        KindPoint,
	} {
		got, err := ParseEventKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseEventKind("TIMEOUT")
	assert.Error(t, err)
}

func TestPickKeepsLastKnown(t *testing.T) {
	last := Int(4)
	assert.Same(t, last, Pick(nil, last))
	assert.Equal(t, 7, *Pick(Int(7), last))
	assert.Equal(t, 3, PickInt(nil, 3))
	assert.Equal(t, 0, PickInt(Int(0), 3))
}

func TestClockAndLabels(t *testing.T) {
	assert.Equal(t, "0:00", LiveScoreState{}.Clock())
	assert.Equal(t, "12:05", LiveScoreState{ElapsedSeconds: 725}.Clock())
	assert.Equal(t, "0'", ClockLabel(nil))
	assert.Equal(t, "37'", ClockLabel(Int(37)))
}

func TestRosterFind(t *testing.T) {
	r := Roster{Side1: []Player{{ID: 7, Name: "Ada"}}, Side2: []Player{{ID: 9, Name: "Bo"}}}
	p, ok := r.Find(Side1, 7)
	require.True(t, ok)
	assert.Equal(t, "Ada", p.Name)
	_, ok = r.Find(Side2, 7)
	assert.False(t, ok)
	assert.False(t, r.Empty())
	assert.True(t, Roster{}.Empty())
}

func TestParseSide(t *testing.T) {
	s, err := ParseSide("away")
	require.NoError(t, err)
	assert.Equal(t, Side2, s)
	_, err = ParseSide("3")
	assert.Error(t, err)
}
