// Package reconciler keeps the operator's view of the selected match
// consistent with the backend across REST snapshots and push messages.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charleschow/live-scoring/internal/adapters/outbound/backend_http"
	"github.com/charleschow/live-scoring/internal/core/state/eventlog"
	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

var (
	ErrNoSelection = errors.New("no match selected")
	ErrClosed      = errors.New("session closed")
)

// Subscriber is the push side. *stomp_ws.Channel implements it.
type Subscriber interface {
	Subscribe(topic string, h func(events.Envelope)) func()
}

// Fetcher is the snapshot side. *backend_http.Client implements it.
type Fetcher interface {
	LiveMatches(ctx context.Context) ([]match.Summary, error)
	Snapshot(ctx context.Context, matchID int64) (backend_http.Snapshot, error)
}

type Config struct {
	PollInterval time.Duration
	AutoSelect   bool
	Classifier   *match.Classifier
}

// View is a consistent copy of everything the session owns.
type View struct {
	Selected int64                `json:"selected"`
	Identity match.Identity       `json:"identity"`
	State    match.LiveScoreState `json:"state"`
	Events   []match.ScoringEvent `json:"events"` // oldest first
	Roster   match.Roster         `json:"roster"`
	Live     []match.Summary      `json:"live"`
}

// Session owns the state of the selected match.
//
// All state is owned by one goroutine that drains inbox. Push callbacks,
// fetch results and poll ticks are closures run there in arrival order, so
// the last one to arrive wins. Snapshot fetches never run on that goroutine.
type Session struct {
	sub        Subscriber
	fetch      Fetcher
	bus        *events.Bus
	classifier *match.Classifier
	pollEvery  time.Duration
	autoSelect bool

	inbox     chan func()
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// actor-owned
	gen           uint64 // bumped on every selection change
	selected      int64
	identity      match.Identity
	roster        match.Roster
	state         match.LiveScoreState
	log           *eventlog.Log
	unsub         func()
	live          []match.Summary
	autoSelected  bool
	finalRefresh  bool
	warnedMissing bool
}

func New(sub Subscriber, fetch Fetcher, bus *events.Bus, cfg Config) *Session {
	if cfg.Classifier == nil {
		cfg.Classifier = match.DefaultClassifier()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	s := &Session{
		sub:        sub,
		fetch:      fetch,
		bus:        bus,
		classifier: cfg.Classifier,
		pollEvery:  cfg.PollInterval,
		autoSelect: cfg.AutoSelect,
		inbox:      make(chan func(), 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		log:        eventlog.New(),
	}
	go s.run()
	return s
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.inbox:
			fn()
		case <-s.stop:
			return
		}
	}
}

// Send enqueues fn without blocking. A full inbox drops fn; the next poll
// refresh repairs whatever it would have changed.
func (s *Session) Send(fn func()) {
	select {
	case <-s.stop:
		return
	default:
	}
	select {
	case s.inbox <- fn:
	default:
		telemetry.Metrics.InboxOverflows.Inc()
		telemetry.Warnf("reconciler: inbox full (cap=%d), dropping update", cap(s.inbox))
	}
}

// call runs fn on the actor and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case s.inbox <- func() { fn(); close(finished) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns a copy of the session state.
func (s *Session) View(ctx context.Context) (View, error) {
	var v View
	err := s.call(ctx, func() {
		v = View{
			Selected: s.selected,
			Identity: s.identity,
			State:    s.state,
			Events:   s.log.Entries(),
			Roster:   s.roster,
			Live:     append([]match.Summary(nil), s.live...),
		}
	})
	return v, err
}

// Select switches to matchID. The previous topic is unsubscribed before the
// new one is subscribed; the model is fixed here and never changes until
// the next Select.
func (s *Session) Select(ctx context.Context, matchID int64) error {
	if matchID <= 0 {
		return fmt.Errorf("invalid match id %d", matchID)
	}

	var gen uint64
	var listSport string
	if err := s.call(ctx, func() {
		s.teardown()
		s.gen++
		gen = s.gen
		s.selected = matchID
		s.autoSelected = true
		s.identity = match.Identity{ID: matchID}
		s.state = match.LiveScoreState{MatchID: matchID, UpdatedAt: time.Now()}
		if sum, ok := s.summary(matchID); ok {
			listSport = sum.SportName
			s.identity.SportName = sum.SportName
			s.identity.Side1Name, s.identity.Side2Name = sum.Side1Name, sum.Side2Name
			s.state.ElapsedSeconds, s.state.Running = sum.ElapsedSeconds, sum.Running
		}

		s.unsub = s.sub.Subscribe(events.MatchTopic(matchID), func(env events.Envelope) {
			s.Send(func() { s.applyPush(gen, env) })
		})
		s.publish(events.EventMatchSelected, s.identity)
		telemetry.Infof("reconciler: selected match %d", matchID)
	}); err != nil {
		return err
	}

	snap, fetchErr := s.fetch.Snapshot(ctx, matchID)
	var result error
	err := s.call(ctx, func() {
		if gen != s.gen {
			telemetry.Metrics.StaleDropped.Inc()
			return
		}
		if s.state.Model == match.ModelUnknown {
			s.state.Model = s.classifier.Classify(pickSport(snap, listSport))
			telemetry.Infof("reconciler: match %d scored as %s", matchID, s.state.Model)
		}
		if fetchErr != nil {
			s.softError("select", "Failed to load match details", fetchErr)
			result = fetchErr
			return
		}
		s.applySnapshot(snap, false)
	})
	if err != nil {
		return err
	}
	return result
}

// pickSport prefers the live score's sportName, then the detail's sport,
// then the live list's sportType.
func pickSport(snap backend_http.Snapshot, listSport string) string {
	if snap.Score != nil && snap.Score.SportName != "" {
		return snap.Score.SportName
	}
	if snap.Detail != nil {
		if name := snap.Detail.SportLabel(); name != "" {
			return name
		}
	}
	return listSport
}

// Deselect drops the current match and its subscription.
func (s *Session) Deselect(ctx context.Context) error {
	return s.call(ctx, func() {
		s.teardown()
		s.gen++
		s.selected = 0
		s.identity = match.Identity{}
		s.state = match.LiveScoreState{}
	})
}

// teardown must run on the actor.
func (s *Session) teardown() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	s.log.Clear()
	s.roster = match.Roster{}
	s.finalRefresh = false
	s.warnedMissing = false
}

// Refresh re-fetches the selected match and overwrites the fields of its
// model. New events are merged into the log. A failed fetch leaves state
// untouched, publishes a soft error and returns the *backend_http.FetchError.
func (s *Session) Refresh(ctx context.Context) error { return s.refresh(ctx, false) }

// ResyncAfterUndo is Refresh, except the event log is replaced by the
// backend's list rather than merged.
func (s *Session) ResyncAfterUndo(ctx context.Context) error { return s.refresh(ctx, true) }

func (s *Session) refresh(ctx context.Context, resync bool) error {
	var id int64
	var gen uint64
	if err := s.call(ctx, func() { id, gen = s.selected, s.gen }); err != nil {
		return err
	}
	if id == 0 {
		return ErrNoSelection
	}

	snap, fetchErr := s.fetch.Snapshot(ctx, id)
	err := s.call(ctx, func() {
		if gen != s.gen {
			telemetry.Metrics.StaleDropped.Inc()
			return
		}
		if fetchErr != nil {
			s.softError("refresh", "Failed to refresh match", fetchErr)
			return
		}
		s.applySnapshot(snap, resync)
	})
	if err != nil {
		return err
	}
	return fetchErr
}

// applySnapshot runs on the actor.
func (s *Session) applySnapshot(snap backend_http.Snapshot, resync bool) {
	ls, d := snap.Score, snap.Detail
	if ls == nil {
		ls = &backend_http.LiveScore{}
	}
	if d == nil {
		d = &backend_http.MatchDetail{ID: s.selected}
	}
	var scoreA, scoreB *int
	if ls.Data != nil {
		scoreA, scoreB = ls.Data.ScoreA, ls.Data.ScoreB
	}

	st := s.state
	switch st.Model {
	case match.ModelSetBased:
		st.Side1Total = firstInt(ls.Team1TotalScore, scoreA, d.Team1Score)
		st.Side2Total = firstInt(ls.Team2TotalScore, scoreB, d.Team2Score)
		st.Side1SetsWon = match.Int(firstInt(ls.Team1SetsWon, d.Team1SetsWon))
		st.Side2SetsWon = match.Int(firstInt(ls.Team2SetsWon, d.Team2SetsWon))
		st.Side1SetScore = match.Int(firstInt(ls.Team1CurrentSetPoints))
		st.Side2SetScore = match.Int(firstInt(ls.Team2CurrentSetPoints))
		st.CurrentSet = match.Int(max(firstInt(ls.CurrentSet), 1))
	default:
		st.Side1Total = firstInt(scoreA, d.Team1Score, ls.Team1TotalScore)
		st.Side2Total = firstInt(scoreB, d.Team2Score, ls.Team2TotalScore)
	}
	if d.WinnerName != "" {
		st.WinnerTag = d.WinnerName
	}

	id := d.Identity()
	if id.Side1Name == "" {
		id.Side1Name = s.identity.Side1Name
	}
	if id.Side2Name == "" {
		id.Side2Name = s.identity.Side2Name
	}
	if id.SportName == "" {
		id.SportName = s.identity.SportName
	}
	s.identity = id
	s.roster = d.Roster()

	if ls.Data != nil && ls.Data.Events != nil {
		// without ids a list cannot be merged, so it is taken whole
		evs := ls.ScoringEvents()
		if resync || !eventlog.Identified(evs) {
			s.log.Replace(evs)
		} else {
			s.log.Merge(evs)
		}
	} else if resync {
		s.log.Replace(nil)
	}

	s.commit(st, "snapshot")
}

func firstInt(vs ...*int) int {
	for _, v := range vs {
		if v != nil {
			return *v
		}
	}
	return 0
}

func (s *Session) commit(st match.LiveScoreState, source string) {
	st.UpdatedAt = time.Now()
	s.state = st
	s.publish(events.EventScoreChanged, events.ScoreChanged{State: st, Source: source})
}

// applyPush runs on the actor. The message type decides which fields are
// touched, independent of the match's model.
func (s *Session) applyPush(gen uint64, env events.Envelope) {
	if gen != s.gen {
		telemetry.Metrics.StaleDropped.Inc()
		return
	}

	var err error
	switch {
	case env.Type == events.PushScoreUpdate:
		err = s.onScoreUpdate(env)
	case env.Type == events.PushSetCompleted:
		err = s.onSetCompleted(env)
	case env.Type == events.PushMatchCompleted:
		err = s.onMatchCompleted(env)
	case env.IsDiscreteEvent():
		err = s.onEvent(env)
	default:
		telemetry.Debugf("reconciler: ignoring push type %q", env.Type)
		return
	}
	if err != nil {
		telemetry.Warnf("reconciler: match %d: %v", s.selected, err)
		return
	}
	telemetry.Metrics.PushApplied.WithLabelValues(string(env.Type)).Inc()
}

func (s *Session) onScoreUpdate(env events.Envelope) error {
	d, err := env.ScoreUpdate()
	if err != nil {
		return err
	}
	if s.state.Frozen {
		telemetry.Debugf("reconciler: match %d frozen, ignoring score update", s.selected)
		return nil
	}

	st := s.state
	st.Side1Total = match.PickInt(d.Team1TotalScore, st.Side1Total)
	st.Side2Total = match.PickInt(d.Team2TotalScore, st.Side2Total)
	if d.SetOriented() {
		st.Side1SetsWon = match.Pick(d.Team1SetsWon, st.Side1SetsWon)
		st.Side2SetsWon = match.Pick(d.Team2SetsWon, st.Side2SetsWon)
		st.Side1SetScore = match.Pick(d.Team1CurrentSetPoints, st.Side1SetScore)
		st.Side2SetScore = match.Pick(d.Team2CurrentSetPoints, st.Side2SetScore)
		st.CurrentSet = match.Pick(d.CurrentSet, st.CurrentSet)
	}
	s.commit(st, "push")
	return nil
}

// onSetCompleted moves the set tally and index. Current-set points stay
// as they are until the next score update opens the new set.
func (s *Session) onSetCompleted(env events.Envelope) error {
	d, err := env.SetCompleted()
	if err != nil {
		return err
	}
	if !s.state.Frozen {
		st := s.state
		st.Side1SetsWon = match.Pick(d.Team1SetsWon, st.Side1SetsWon)
		st.Side2SetsWon = match.Pick(d.Team2SetsWon, st.Side2SetsWon)
		st.CurrentSet = match.Pick(d.NextSetNumber, st.CurrentSet)
		s.commit(st, "push")
	}

	s.publish(events.EventSetCompleted, events.SetCompleted{
		Identity:   s.identity,
		SequenceID: pushSequence(d.ID, env),
		Data:       d,
	})
	return nil
}

func (s *Session) onMatchCompleted(env events.Envelope) error {
	d, err := env.MatchCompleted()
	if err != nil {
		return err
	}

	side := match.Side(d.WinnerTeamID)
	if !side.Valid() {
		side = match.SideNone
	}
	winner := d.WinnerName
	if winner == "" {
		winner = s.identity.Name(side)
	}
	if winner == "" {
		winner = d.Team1Name
	}
	if winner == "" {
		winner = "Winner"
	}

	st := s.state
	if !st.Frozen {
		st.Side1Total = firstInt(d.Team1TotalScore, d.ScoreA, &st.Side1Total)
		st.Side2Total = firstInt(d.Team2TotalScore, d.ScoreB, &st.Side2Total)
		st.Frozen = true
		st.WinnerTag = winner
		s.commit(st, "push")
	}

	s.publish(events.EventMatchCompleted, events.MatchCompleted{
		Identity:   s.identity,
		SequenceID: pushSequence(d.ID, env),
		WinnerName: winner,
		WinnerSide: side,
		Side1Total: s.state.Side1Total,
		Side2Total: s.state.Side2Total,
	})

	if !s.finalRefresh {
		s.finalRefresh = true
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
				telemetry.Warnf("reconciler: final refresh: %v", err)
			}
		}()
	}
	return nil
}

func pushSequence(id *int64, env events.Envelope) int64 {
	if id != nil {
		return *id
	}
	if env.ID != nil {
		return *env.ID
	}
	return 0
}

// onEvent appends to the log only. Scores move with the companion
// SCORE_UPDATE.
func (s *Session) onEvent(env events.Envelope) error {
	d, err := env.Event()
	if err != nil {
		return err
	}
	e := d.ToScoringEvent(d.SequenceID(env))
	if !s.log.Append(e) {
		telemetry.Metrics.DuplicateEvents.Inc()
		telemetry.Debugf("reconciler: duplicate event %d", e.SequenceID)
		return nil
	}
	s.publish(events.EventScoringEvent, events.ScoringEventAppended{Event: e})
	return nil
}

func (s *Session) summary(id int64) (match.Summary, bool) {
	for _, m := range s.live {
		if m.ID == id {
			return m, true
		}
	}
	return match.Summary{}, false
}

func (s *Session) softError(op, msg string, err error) {
	telemetry.Warnf("reconciler: %s: %s: %v", op, msg, err)
	se := events.SoftError{Op: op, Message: msg, Err: err}
	if err != nil {
		se.Detail = err.Error()
	}
	s.publish(events.EventSoftError, se)
}

func (s *Session) publish(t events.EventType, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.Event{
		ID:        uuid.NewString(),
		Type:      t,
		MatchID:   s.selected,
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Close unsubscribes, stops the actor and waits for it to exit. Run loops
// return once their context is cancelled or the session is closed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.call(ctx, s.teardown)
		close(s.stop)
		<-s.done
	})
}
