package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

func TestBusDispatchesInRegistrationOrder(t *testing.T) {
	bus := NewBus()
	var order []string
	bus.Subscribe(EventScoreChanged, func(Event) error { order = append(order, "a"); return errors.New("boom") })
	bus.Subscribe(EventScoreChanged, func(Event) error { order = append(order, "b"); return nil })
	bus.Subscribe(EventSoftError, func(Event) error { order = append(order, "other"); return nil })

	bus.Publish(Event{Type: EventScoreChanged})
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestDecodeEnvelope(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"SCORE_UPDATE","data":{"team1TotalScore":2,"team2TotalScore":0}}`))
	require.NoError(t, err)
	assert.Equal(t, PushScoreUpdate, env.Type)

	d, err := env.ScoreUpdate()
	require.NoError(t, err)
	assert.Equal(t, 2, *d.Team1TotalScore)
	assert.Nil(t, d.Team1SetsWon)
	assert.False(t, d.SetOriented())

	_, err = DecodeEnvelope([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestScoreUpdateSetOrientedSniffing(t *testing.T) {
	env := Envelope{Type: PushScoreUpdate, Data: []byte(`{"currentSet":2}`)}
	d, err := env.ScoreUpdate()
	require.NoError(t, err)
	assert.True(t, d.SetOriented())

	env = Envelope{Type: PushScoreUpdate, Data: []byte(`{"team2SetsWon":0}`)}
	d, err = env.ScoreUpdate()
	require.NoError(t, err)
	assert.True(t, d.SetOriented(), "an explicit zero still counts as present")
}

func TestEmptyDataIsAnError(t *testing.T) {
	_, err := Envelope{Type: PushSetCompleted}.SetCompleted()
	assert.Error(t, err)
	_, err = Envelope{Type: PushMatchCompleted, Data: []byte("null")}.MatchCompleted()
	assert.Error(t, err)
}

func TestEventProjection(t *testing.T) {
	env, err := DecodeEnvelope([]byte(`{"type":"CARD","data":{"eventId":55,"eventType":"YELLOW","team":2,"playerName":"Kim","playerId":8,"matchMinute":61}}`))
	require.NoError(t, err)
	require.True(t, env.IsDiscreteEvent())

	d, err := env.Event()
	require.NoError(t, err)
	seq := d.SequenceID(env)
	assert.Equal(t, int64(55), seq)

	e := d.ToScoringEvent(seq)
	assert.Equal(t, match.KindYellowCard, e.Kind)
	assert.Equal(t, match.Side2, e.Side)
	assert.Equal(t, "Kim", e.ActorName)
	assert.Equal(t, int64(8), *e.ActorID)
	assert.Equal(t, "61'", e.ClockLabel)
}

func TestEventProjectionDefaults(t *testing.T) {
	one := 1
	d := EventData{ScoringTeam: &one}
	e := d.ToScoringEvent(0)
	assert.Equal(t, match.Side1, e.Side)
	assert.Equal(t, match.KindGoal, e.Kind)
	assert.Equal(t, "Unknown", e.ActorName)
	assert.Equal(t, "0'", e.ClockLabel)

	id := int64(9)
	assert.Equal(t, int64(9), EventData{}.SequenceID(Envelope{ID: &id}))
	assert.Equal(t, int64(0), EventData{}.SequenceID(Envelope{}))
}
