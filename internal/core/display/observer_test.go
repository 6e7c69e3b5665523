package display

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
)

func publish(bus *events.Bus, t events.EventType, payload any) {
	bus.Publish(events.Event{Type: t, MatchID: 7, Payload: payload})
}

func TestObserverPrintsScoreboardOncePerChange(t *testing.T) {
	var out bytes.Buffer
	bus := events.NewBus()
	NewObserver(&out).Attach(bus)

	publish(bus, events.EventMatchSelected, match.Identity{ID: 7, Side1Name: "Aces BC", Side2Name: "Birds", SportName: "Badminton"})
	st := match.LiveScoreState{MatchID: 7, Model: match.ModelSetBased, Side1Total: 5, Side2Total: 3,
		Side1SetScore: match.Int(5), Side2SetScore: match.Int(3), CurrentSet: match.Int(1)}

	publish(bus, events.EventScoreChanged, events.ScoreChanged{State: st, Source: "snapshot"})
	publish(bus, events.EventScoreChanged, events.ScoreChanged{State: st, Source: "snapshot"})

	s := out.String()
	assert.Contains(t, s, "Watching match #7  Aces BC vs Birds")
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("[LIVE ")))
	assert.Contains(t, s, "Aces 5  |  Birds 3")
	assert.Contains(t, s, "Set 1:")
}

func TestObserverContinuousAndFinal(t *testing.T) {
	var out bytes.Buffer
	bus := events.NewBus()
	NewObserver(&out).Attach(bus)

	st := match.LiveScoreState{MatchID: 7, Model: match.ModelContinuous, Side1Total: 2, Side2Total: 1, ElapsedSeconds: 754}
	publish(bus, events.EventScoreChanged, events.ScoreChanged{State: st, Source: "snapshot"})
	assert.Contains(t, out.String(), "Score 2-1  |  12:34 (paused)")

	mc := events.MatchCompleted{Identity: match.Identity{ID: 7}, WinnerName: "Lions", Side1Total: 2, Side2Total: 1}
	publish(bus, events.EventMatchCompleted, mc)
	publish(bus, events.EventMatchCompleted, mc)
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("FINAL #7")))
}

func TestObserverEventsAndNotices(t *testing.T) {
	var out bytes.Buffer
	bus := events.NewBus()
	NewObserver(&out).Attach(bus)

	publish(bus, events.EventScoringEvent, events.ScoringEventAppended{Event: match.ScoringEvent{
		SequenceID: 3, Kind: match.KindGoal, Side: match.Side2, ActorName: "Kim", ClockLabel: "12'",
	}})
	publish(bus, events.EventSoftError, events.SoftError{Message: "Failed to load live matches"})
	publish(bus, events.EventChannelStatus, events.ChannelStatus{Connected: false})

	s := out.String()
	assert.Contains(t, s, "#3")
	assert.Contains(t, s, "Kim (side2)")
	assert.Contains(t, s, "! Failed to load live matches")
	assert.Contains(t, s, "[PUSH DOWN]")
}

func TestShortName(t *testing.T) {
	assert.Equal(t, "Rovers", shortName("Blackburn Rovers FC"))
	assert.Equal(t, "Aces", shortName("Aces"))
	assert.Equal(t, "", shortName(""))
}
