package fanout

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
)

func TestProtocolRoundTripKeepsTypedPayloads(t *testing.T) {
	st := match.LiveScoreState{MatchID: 7, Model: match.ModelSetBased, Side1Total: 12, Side1SetsWon: match.Int(1)}
	data, err := MarshalEvent(events.Event{
		ID: "e1", Type: events.EventScoreChanged, MatchID: 7, Timestamp: time.Unix(100, 0).UTC(),
		Payload: events.ScoreChanged{State: st, Source: "push"},
	})
	require.NoError(t, err)

	evt, err := UnmarshalEvent(data)
	require.NoError(t, err)
	assert.Equal(t, events.EventScoreChanged, evt.Type)
	assert.Equal(t, int64(7), evt.MatchID)
	sc, ok := evt.Payload.(events.ScoreChanged)
	require.True(t, ok)
	assert.Equal(t, "push", sc.Source)
	assert.Equal(t, 12, sc.State.Side1Total)
	assert.Equal(t, 1, *sc.State.Side1SetsWon)
	assert.Equal(t, match.ModelSetBased, sc.State.Model)
}

func TestProtocolSoftErrorCarriesDetail(t *testing.T) {
	data, err := MarshalEvent(events.Event{Type: events.EventSoftError, Payload: events.SoftError{
		Op: "snapshot", Message: "Failed to refresh", Detail: "status 503", Err: errors.New("status 503"),
	}})
	require.NoError(t, err)

	evt, err := UnmarshalEvent(data)
	require.NoError(t, err)
	se := evt.Payload.(events.SoftError)
	assert.Equal(t, "Failed to refresh", se.Message)
	require.Error(t, se.Err)
	assert.Equal(t, "status 503", se.Err.Error())
}

func TestProtocolRejectsUnknownType(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"type":"order_fill","payload":{}}`))
	assert.Error(t, err)
	_, err = UnmarshalEvent([]byte(`{`))
	assert.Error(t, err)
}

type collector struct {
	mu   sync.Mutex
	evts []events.Event
}

func (c *collector) add(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evts = append(c.evts, e)
	return nil
}

func (c *collector) snapshot() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event(nil), c.evts...)
}

func TestServerForwardsToFilteredClient(t *testing.T) {
	src := events.NewBus()
	s := NewServer(src)
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	defer srv.Close()

	dst := events.NewBus()
	got := &collector{}
	dst.Subscribe(events.EventScoreChanged, got.add)
	dst.Subscribe(events.EventChannelStatus, got.add)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewClient(strings.TrimPrefix(srv.URL, "http://"), 7, dst).ConnectWithRetry(ctx)

	require.Eventually(t, func() bool { return s.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	src.Publish(events.Event{Type: events.EventScoreChanged, MatchID: 8, Payload: events.ScoreChanged{State: match.LiveScoreState{MatchID: 8}}})
	src.Publish(events.Event{Type: events.EventScoreChanged, MatchID: 7, Payload: events.ScoreChanged{State: match.LiveScoreState{MatchID: 7, Side2Total: 3}}})
	src.Publish(events.Event{Type: events.EventChannelStatus, Payload: events.ChannelStatus{Connected: true}})

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	evts := got.snapshot()
	assert.Equal(t, int64(7), evts[0].MatchID)
	assert.Equal(t, 3, evts[0].Payload.(events.ScoreChanged).State.Side2Total)
	assert.Equal(t, events.EventChannelStatus, evts[1].Type)

	cancel()
	assert.Eventually(t, func() bool { return s.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHandleWSRejectsBadMatch(t *testing.T) {
	s := NewServer(events.NewBus())
	srv := httptest.NewServer(http.HandlerFunc(s.HandleWS))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "?match=abc")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
