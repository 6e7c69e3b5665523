// Package completion turns set and match completions into one-shot
// operator notifications.
package completion

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

type Kind string

const (
	KindSetComplete   Kind = "set_complete"
	KindMatchComplete Kind = "match_complete"
)

const (
	defaultRecent = 50
	queueSize     = 64
	deliverWait   = 15 * time.Second
)

type Notification struct {
	Key        string     `json:"key"`
	Kind       Kind       `json:"kind"`
	MatchID    int64      `json:"matchId"`
	Sport      string     `json:"sport,omitempty"`
	SetNumber  int        `json:"setNumber,omitempty"`
	WinnerSide match.Side `json:"winnerSide"`
	WinnerName string     `json:"winnerName"`
	SetScore   string     `json:"setScore,omitempty"`
	SetsWon    string     `json:"setsWonTally,omitempty"`
	FinalScore string     `json:"finalScore,omitempty"`
	At         time.Time  `json:"at"`
}

func (n Notification) Title() string {
	if n.Kind == KindSetComplete {
		return fmt.Sprintf("Set %d Complete!", n.SetNumber)
	}
	return "Match Complete!"
}

func (n Notification) Message() string {
	if n.Kind == KindSetComplete {
		return fmt.Sprintf("%s wins the %s set %s. Sets: %s",
			n.WinnerName, humanize.Ordinal(n.SetNumber), n.SetScore, n.SetsWon)
	}
	return fmt.Sprintf("%s wins the match! Final score %s", n.WinnerName, n.FinalScore)
}

// Sink delivers a notification somewhere the operator will see it.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Notifier is subscribed to the bus. Dedupe and the recent list are updated
// on the publisher's goroutine; sinks run on the notifier's own goroutine.
type Notifier struct {
	sinks  []Sink
	guard  *OnceGuard
	queue  chan Notification
	done   chan struct{}
	closed sync.Once

	mu      sync.Mutex
	recent  []Notification
	limit   int
	stopped bool
}

func New(sinks ...Sink) *Notifier {
	n := &Notifier{
		sinks: sinks,
		guard: NewOnceGuard(),
		queue: make(chan Notification, queueSize),
		done:  make(chan struct{}),
		limit: defaultRecent,
	}
	go n.run()
	return n
}

// Attach subscribes to set and match completions.
func (n *Notifier) Attach(bus *events.Bus) {
	bus.Subscribe(events.EventSetCompleted, func(e events.Event) error {
		p, ok := e.Payload.(events.SetCompleted)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		n.OnSetCompleted(p)
		return nil
	})
	bus.Subscribe(events.EventMatchCompleted, func(e events.Event) error {
		p, ok := e.Payload.(events.MatchCompleted)
		if !ok {
			return fmt.Errorf("unexpected payload %T", e.Payload)
		}
		n.OnMatchCompleted(p)
		return nil
	})
}

func (n *Notifier) OnSetCompleted(p events.SetCompleted) bool {
	side := match.Side(p.Data.WinnerTeamID)
	if !side.Valid() {
		side = match.SideNone
	}
	winner := p.Identity.Name(side)
	if winner == "" {
		winner = fmt.Sprintf("Team %d", p.Data.WinnerTeamID)
	}
	return n.emit(Notification{
		Key:        Key(KindSetComplete, p.Identity.ID, p.SequenceID, p.Data.SetNumber),
		Kind:       KindSetComplete,
		MatchID:    p.Identity.ID,
		Sport:      p.Identity.SportName,
		SetNumber:  p.Data.SetNumber,
		WinnerSide: side,
		WinnerName: winner,
		SetScore:   fmt.Sprintf("%d-%d", p.Data.Team1SetScore, p.Data.Team2SetScore),
		SetsWon:    fmt.Sprintf("%d-%d", match.Deref(p.Data.Team1SetsWon), match.Deref(p.Data.Team2SetsWon)),
	})
}

func (n *Notifier) OnMatchCompleted(p events.MatchCompleted) bool {
	return n.emit(Notification{
		Key:        Key(KindMatchComplete, p.Identity.ID, p.SequenceID, 0),
		Kind:       KindMatchComplete,
		MatchID:    p.Identity.ID,
		Sport:      p.Identity.SportName,
		WinnerSide: p.WinnerSide,
		WinnerName: p.WinnerName,
		FinalScore: fmt.Sprintf("%d - %d", p.Side1Total, p.Side2Total),
	})
}

func (n *Notifier) emit(note Notification) bool {
	if !n.guard.First(note.Key) {
		telemetry.Debugf("completion: %s already notified", note.Key)
		return false
	}
	note.At = time.Now()
	telemetry.Metrics.Notifications.WithLabelValues(string(note.Kind)).Inc()

	n.mu.Lock()
	defer n.mu.Unlock()
	n.recent = append(n.recent, note)
	if len(n.recent) > n.limit {
		n.recent = n.recent[len(n.recent)-n.limit:]
	}
	if n.stopped {
		return true
	}
	select {
	case n.queue <- note:
	default:
		telemetry.Warnf("completion: sink queue full, dropping %s", note.Key)
	}
	return true
}

// Recent returns the notifications emitted so far, newest first.
func (n *Notifier) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.recent))
	for i, note := range n.recent {
		out[len(n.recent)-1-i] = note
	}
	return out
}

func (n *Notifier) run() {
	defer close(n.done)
	for note := range n.queue {
		for _, s := range n.sinks {
			ctx, cancel := context.WithTimeout(context.Background(), deliverWait)
			if err := s.Deliver(ctx, note); err != nil {
				telemetry.Warnf("completion: %s sink: %v", s.Name(), err)
			}
			cancel()
		}
	}
}

// Close delivers what is queued and stops the sink goroutine. Later
// notifications only reach the recent list.
func (n *Notifier) Close() {
	n.closed.Do(func() {
		n.mu.Lock()
		n.stopped = true
		close(n.queue)
		n.mu.Unlock()
		<-n.done
	})
}

// LogSink writes notifications to the process log.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, n Notification) error {
	telemetry.Infof("[%s] %s %s", humanize.Time(n.At), n.Title(), n.Message())
	return nil
}
