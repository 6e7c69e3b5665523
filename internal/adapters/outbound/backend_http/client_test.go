package backend_http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
	Auth   string
}

type fakeBackend struct {
	srv    *httptest.Server
	mu     sync.Mutex
	reqs   []recordedRequest
	routes map[string]func(w http.ResponseWriter)
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()
	fb := &fakeBackend{routes: make(map[string]func(w http.ResponseWriter))}
	fb.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		fb.mu.Lock()
		fb.reqs = append(fb.reqs, recordedRequest{
			Method: r.Method, Path: r.URL.Path, Query: r.URL.RawQuery,
			Body: string(body), Auth: r.Header.Get("Authorization"),
		})
		h, ok := fb.routes[r.Method+" "+r.URL.Path]
		fb.mu.Unlock()
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		h(w)
	}))
	t.Cleanup(fb.srv.Close)
	return fb
}

func (fb *fakeBackend) on(route string, status int, body string) {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	fb.routes[route] = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}
}

func (fb *fakeBackend) last() recordedRequest {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.reqs[len(fb.reqs)-1]
}

func newTestClient(fb *fakeBackend) *Client {
	return NewClient(Config{BaseURL: fb.srv.URL + "/api/", AuthToken: "tok"})
}

func TestLiveMatches(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /api/matches/live", 200, `[
		{"matchId":7,"sportType":"Badminton","teamAName":"Aces","teamBName":"Birds","scoreA":1,"scoreB":0,
		 "status":"LIVE","startTime":"2026-03-01T10:00:00Z","timerState":{"elapsedTimeInSeconds":125,"running":true}},
		{"matchId":8,"sportName":"Football","teamAName":"A","teamBName":"B"}
	]`)

	got, err := newTestClient(fb).LiveMatches(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, "Badminton", got[0].SportName)
	assert.Equal(t, 125, got[0].ElapsedSeconds)
	assert.True(t, got[0].Running)
	assert.Equal(t, 2026, got[0].StartTime.Year())
	assert.Equal(t, "Football", got[1].SportName)
	assert.Equal(t, "Bearer tok", fb.last().Auth)
}

func TestFetchErrorOnNon2xx(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /api/match/3/live-score", 500, `boom`)

	_, err := newTestClient(fb).LiveScore(context.Background(), 3)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "live_score", fe.Op)
	assert.Equal(t, 500, fe.Status)
	assert.Equal(t, "boom", fe.Body)
}

func TestFetchErrorOnTransportFailure(t *testing.T) {
	fb := newFakeBackend(t)
	c := newTestClient(fb)
	fb.srv.Close()

	_, err := c.MatchDetail(context.Background(), 1)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.Status)
	assert.Error(t, fe.Err)
}

func TestLiveScoreEvents(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /api/match/4/live-score", 200, `{"sportName":"Football","data":{"scoreA":2,"scoreB":1,"events":[
		{"eventType":"GOAL","team":1,"playerName":"Ann","playerId":11,"matchMinute":12},
		{"id":40,"eventType":"RED","team":2,"playerName":"Bo"}
	]}}`)

	ls, err := newTestClient(fb).LiveScore(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, 2, *ls.Data.ScoreA)

	evs := ls.ScoringEvents()
	require.Len(t, evs, 2)
	assert.Zero(t, evs[0].SequenceID, "unnumbered events stay unnumbered")
	assert.Equal(t, match.KindGoal, evs[0].Kind)
	assert.Equal(t, "12'", evs[0].ClockLabel)
	assert.Equal(t, int64(40), evs[1].SequenceID)
	assert.Equal(t, match.KindRedCard, evs[1].Kind)
	assert.Equal(t, match.Side2, evs[1].Side)
}

func TestMatchDetailRosterFallback(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /api/match/5", 200, `{"id":5,"sport":{"name":"Tennis"},
		"team1":{"id":100,"name":"Lions","teamMembers":[{"id":1,"user":{"id":1,"name":"Member","username":"m"}}]},
		"team2":{"id":200,"name":"Tigers","teamMembers":[{"id":9,"user":{"name":"Ignored"}}]},
		"team1Players":null,
		"team2Players":[{"playerId":21,"playerName":"Pat"}]}`)

	c := newTestClient(fb)
	d, err := c.MatchDetail(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, "Tennis", d.SportLabel())

	id := d.Identity()
	assert.Equal(t, "Lions", id.Side1Name)
	assert.Equal(t, int64(200), id.Side2ID)

	roster, err := c.Roster(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, roster.Side1, 1)
	assert.Equal(t, match.Player{ID: 1, Name: "Member", Username: "m"}, roster.Side1[0])
	require.Len(t, roster.Side2, 1)
	assert.Equal(t, match.Player{ID: 21, Name: "Pat"}, roster.Side2[0])
}

func TestSnapshotFailsWhenEitherReadFails(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("GET /api/match/6/live-score", 200, `{"team1TotalScore":3}`)
	fb.on("GET /api/match/6", 404, `missing`)

	_, err := newTestClient(fb).Snapshot(context.Background(), 6)
	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "match_detail", fe.Op)

	fb.on("GET /api/match/6", 200, `{"id":6}`)
	snap, err := newTestClient(fb).Snapshot(context.Background(), 6)
	require.NoError(t, err)
	assert.Equal(t, 3, *snap.Score.Team1TotalScore)
	assert.Equal(t, int64(6), snap.Detail.ID)
}

func TestActionEndpoints(t *testing.T) {
	fb := newFakeBackend(t)
	c := newTestClient(fb)
	ctx := context.Background()

	require.NoError(t, c.Goal(ctx, 9, match.Side1, 11))
	assert.Equal(t, recordedRequest{Method: "POST", Path: "/api/match/9/goal", Query: "playerId=11&team=1", Auth: "Bearer tok"}, fb.last())

	require.NoError(t, c.RallyScore(ctx, 9, match.Side2, 22, "SMASH"))
	last := fb.last()
	assert.Equal(t, "/api/match/9/rally-score/team2", last.Path)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(last.Body), &body))
	assert.Equal(t, map[string]any{"scorerPlayerId": float64(22), "pointWonBy": "SMASH"}, body)

	require.NoError(t, c.YellowCard(ctx, 9, match.Side2, 5))
	assert.Equal(t, "/api/match/9/yellow-card", fb.last().Path)
	require.NoError(t, c.RedCard(ctx, 9, match.Side1, 5))
	assert.Equal(t, "/api/match/9/red-card", fb.last().Path)
	require.NoError(t, c.Substitution(ctx, 9, match.Side1, 5))
	assert.Equal(t, "/api/match/9/substitution", fb.last().Path)

	require.NoError(t, c.Undo(ctx, 9))
	assert.Equal(t, "/api/match/9/scoring-undo", fb.last().Path)
	assert.Equal(t, "{}", fb.last().Body)

	require.NoError(t, c.Complete(ctx, 9))
	assert.Equal(t, "/api/match-scoring/match/9/complete", fb.last().Path)

	require.NoError(t, c.Abandon(ctx, 9, "Rain"))
	assert.Equal(t, "/api/match/9/abandon", fb.last().Path)
	assert.JSONEq(t, `{"reason":"Rain"}`, fb.last().Body)
}

func TestActionErrorCarriesBackendMessage(t *testing.T) {
	fb := newFakeBackend(t)
	fb.on("POST /api/match/9/goal", 409, `{"message":"Match is not live"}`)
	fb.on("POST /api/match/9/scoring-undo", 400, `nothing to undo`)
	c := newTestClient(fb)

	err := c.Goal(context.Background(), 9, match.Side1, 1)
	var ae *ActionError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "goal", ae.Action)
	assert.Equal(t, 409, ae.Status)
	assert.Equal(t, "Match is not live", ae.Message)

	err = c.Undo(context.Background(), 9)
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "nothing to undo", ae.Message)
}
