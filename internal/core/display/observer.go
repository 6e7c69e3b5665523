package display

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
)

const pushDisplayThrottle = 2 * time.Second

// Observer prints the selected match to the console as bus events arrive.
// Snapshot prints are skipped when nothing visible changed, and bursts of
// push updates are throttled.
type Observer struct {
	out     io.Writer
	tracker *Tracker

	mu       sync.Mutex
	identity match.Identity
}

func NewObserver(out io.Writer) *Observer {
	if out == nil {
		out = os.Stderr
	}
	return &Observer{out: out, tracker: NewTracker()}
}

// Attach subscribes the observer to every reconciler and channel event.
func (o *Observer) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventMatchSelected, o.onSelected)
	bus.Subscribe(events.EventScoreChanged, o.onScore)
	bus.Subscribe(events.EventScoringEvent, o.onEvent)
	bus.Subscribe(events.EventMatchCompleted, o.onCompleted)
	bus.Subscribe(events.EventSoftError, o.onSoftError)
	bus.Subscribe(events.EventChannelStatus, o.onChannel)
}

func (o *Observer) onSelected(e events.Event) error {
	id, ok := e.Payload.(match.Identity)
	if !ok {
		return fmt.Errorf("match_selected: unexpected payload %T", e.Payload)
	}
	o.mu.Lock()
	o.identity = id
	o.mu.Unlock()
	fmt.Fprintf(o.out, "\n>> Watching match #%d  %s vs %s\n", id.ID, sideName(id, match.Side1), sideName(id, match.Side2))
	return nil
}

func (o *Observer) onScore(e events.Event) error {
	sc, ok := e.Payload.(events.ScoreChanged)
	if !ok {
		return fmt.Errorf("score_changed: unexpected payload %T", e.Payload)
	}
	st := o.tracker.Get(sc.State.MatchID)
	line := scoreKey(sc.State)

	o.mu.Lock()
	defer o.mu.Unlock()
	if line == st.LastScore {
		return nil
	}
	if sc.Source == "push" && time.Since(st.LastPrint) < pushDisplayThrottle && !sc.State.Frozen {
		return nil
	}
	st.LastScore = line
	st.LastPrint = time.Now()

	label := "SNAPSHOT"
	if sc.Source == "push" {
		label = "PUSH"
	}
	if !st.DisplayedLive {
		st.DisplayedLive = true
		label = "LIVE"
	}
	PrintScoreboard(o.out, o.identity, sc.State, label)
	return nil
}

func (o *Observer) onEvent(e events.Event) error {
	ev, ok := e.Payload.(events.ScoringEventAppended)
	if !ok {
		return fmt.Errorf("scoring_event: unexpected payload %T", e.Payload)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	PrintEvent(o.out, o.identity, ev.Event)
	return nil
}

func (o *Observer) onCompleted(e events.Event) error {
	mc, ok := e.Payload.(events.MatchCompleted)
	if !ok {
		return fmt.Errorf("match_completed: unexpected payload %T", e.Payload)
	}
	st := o.tracker.Get(mc.Identity.ID)

	o.mu.Lock()
	defer o.mu.Unlock()
	if st.Finaled {
		return nil
	}
	st.Finaled = true
	winner := mc.WinnerName
	if winner == "" {
		winner = "draw"
	}
	fmt.Fprintf(o.out, "\n>> FINAL #%d  %d-%d  %s\n", mc.Identity.ID, mc.Side1Total, mc.Side2Total, winner)
	return nil
}

func (o *Observer) onSoftError(e events.Event) error {
	se, ok := e.Payload.(events.SoftError)
	if !ok {
		return fmt.Errorf("soft_error: unexpected payload %T", e.Payload)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	fmt.Fprintf(o.out, "  ! %s\n", se.Message)
	return nil
}

func (o *Observer) onChannel(e events.Event) error {
	cs, ok := e.Payload.(events.ChannelStatus)
	if !ok {
		return fmt.Errorf("channel_status: unexpected payload %T", e.Payload)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if cs.Connected {
		fmt.Fprintln(o.out, "  [push connected]")
	} else {
		fmt.Fprintln(o.out, "  [PUSH DOWN]")
	}
	return nil
}

func scoreKey(s match.LiveScoreState) string {
	return fmt.Sprintf("%d-%d|%s-%s|%s-%s|%s|%t|%s",
		s.Side1Total, s.Side2Total,
		optional(s.Side1SetScore), optional(s.Side2SetScore),
		optional(s.Side1SetsWon), optional(s.Side2SetsWon),
		optional(s.CurrentSet), s.Frozen, s.WinnerTag)
}
