// backend_mock simulates the scoring backend locally: the REST endpoints the
// operator reads and writes, plus a STOMP-over-websocket push feed that
// broadcasts score updates on /topic/match/{id}.
//
// Usage:
//
//	go run ./cmd/backend_mock
//
// Then run cmd/main.go with:
//
//	LIVESCORE_BACKEND_BASE_URL=http://localhost:9200/api
//	LIVESCORE_BACKEND_WS_URL=ws://localhost:9200/ws/websocket
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/charleschow/live-scoring/internal/adapters/inbound/stomp_ws"
	"github.com/charleschow/live-scoring/internal/events"
)

const (
	listenAddr   = ":9200"
	pointsPerSet = 21
	setsToWin    = 2
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// errNotLive mirrors the backend message for writes against a finished match.
var errNotLive = errors.New("Match is not live")

type player struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type mockMatch struct {
	mu        sync.Mutex
	id        int64
	sport     string
	setBased  bool
	team1     string
	team2     string
	players1  []player
	players2  []player
	scoreA    int
	scoreB    int
	set       int
	setPts    [2]int
	setsWon   [2]int
	elapsed   int
	running   bool
	completed bool
	winner    string
	evts      []events.EventData
	nextEvent int64
}

var matches = []*mockMatch{
	{id: 101, sport: "Football", team1: "Harbour Lions FC", team2: "Eastside Rovers",
		players1: []player{{11, "Sam Okafor"}, {12, "Leo Brandt"}}, players2: []player{{21, "Kai Moreno"}, {22, "Ivo Petrov"}},
		running: true, nextEvent: 1},
	{id: 102, sport: "Badminton", team1: "Aces BC", team2: "Shuttle Birds",
		players1: []player{{31, "Mei Tan"}}, players2: []player{{41, "Ravi Iyer"}},
		setBased: true, set: 1, running: true, nextEvent: 1},
}

func findMatch(r *http.Request) *mockMatch {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return nil
	}
	for _, m := range matches {
		if m.id == id {
			return m
		}
	}
	return nil
}

func main() {
	b := newBroker()

	r := chi.NewRouter()
	r.Get("/ws/websocket", b.handleWS)
	r.Route("/api", func(r chi.Router) {
		r.Get("/matches/live", handleLive)
		r.Get("/match/{id}", withMatch(handleDetail))
		r.Get("/match/{id}/live-score", withMatch(handleLiveScore))
		r.Post("/match/{id}/goal", withMatch(b.handleGoal))
		r.Post("/match/{id}/rally-score/{team}", withMatch(b.handleRally))
		r.Post("/match/{id}/yellow-card", withMatch(b.handleEvent("YELLOW_CARD")))
		r.Post("/match/{id}/red-card", withMatch(b.handleEvent("RED_CARD")))
		r.Post("/match/{id}/substitution", withMatch(b.handleEvent("SUBSTITUTION")))
		r.Post("/match/{id}/scoring-undo", withMatch(b.handleUndo))
		r.Post("/match/{id}/abandon", withMatch(b.handleFinish))
		r.Post("/match-scoring/match/{id}/complete", withMatch(b.handleFinish))
	})

	fmt.Fprintf(os.Stderr, "Scoring backend mock listening on %s\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  REST: http://localhost%s/api\n", listenAddr)
	fmt.Fprintf(os.Stderr, "  WS:   ws://localhost%s/ws/websocket\n", listenAddr)

	go tickMatches(b)

	if err := http.ListenAndServe(listenAddr, r); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func withMatch(h func(http.ResponseWriter, *http.Request, *mockMatch)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m := findMatch(r)
		if m == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"message": "Match not found"})
			return
		}
		h(w, r, m)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ── REST reads ──────────────────────────────────────────────

func handleLive(w http.ResponseWriter, _ *http.Request) {
	var rows []map[string]any
	for _, m := range matches {
		m.mu.Lock()
		if !m.completed {
			rows = append(rows, map[string]any{
				"matchId":    m.id,
				"sportType":  m.sport,
				"teamAName":  m.team1,
				"teamBName":  m.team2,
				"scoreA":     m.scoreA,
				"scoreB":     m.scoreB,
				"status":     "LIVE",
				"timerState": map[string]any{"elapsedTimeInSeconds": m.elapsed, "running": m.running},
			})
		}
		m.mu.Unlock()
	}
	writeJSON(w, http.StatusOK, rows)
}

func handleDetail(w http.ResponseWriter, _ *http.Request, m *mockMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":           m.id,
		"sport":        map[string]any{"id": 1, "name": m.sport},
		"team1":        map[string]any{"id": m.id*10 + 1, "name": m.team1},
		"team2":        map[string]any{"id": m.id*10 + 2, "name": m.team2},
		"team1Score":   m.scoreA,
		"team2Score":   m.scoreB,
		"team1Players": m.players1,
		"team2Players": m.players2,
		"winnerName":   m.winner,
	})
}

func handleLiveScore(w http.ResponseWriter, _ *http.Request, m *mockMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	body := map[string]any{
		"sportName": m.sport,
		"data":      map[string]any{"scoreA": m.scoreA, "scoreB": m.scoreB, "events": m.evts},
	}
	if m.setBased {
		body["team1TotalScore"] = m.scoreA
		body["team2TotalScore"] = m.scoreB
		body["team1SetsWon"] = m.setsWon[0]
		body["team2SetsWon"] = m.setsWon[1]
		body["team1CurrentSetPoints"] = m.setPts[0]
		body["team2CurrentSetPoints"] = m.setPts[1]
		body["currentSet"] = m.set
	}
	writeJSON(w, http.StatusOK, body)
}

// ── REST writes ─────────────────────────────────────────────

func teamParam(r *http.Request) (int, bool) {
	raw := strings.TrimPrefix(chi.URLParam(r, "team"), "team")
	if raw == "" {
		raw = r.URL.Query().Get("team")
	}
	t, err := strconv.Atoi(raw)
	return t, err == nil && (t == 1 || t == 2)
}

func (b *broker) handleGoal(w http.ResponseWriter, r *http.Request, m *mockMatch) {
	team, ok := teamParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "team must be 1 or 2"})
		return
	}
	playerID, _ := strconv.ParseInt(r.URL.Query().Get("playerId"), 10, 64)
	if err := b.goal(m, team, playerID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *broker) handleRally(w http.ResponseWriter, r *http.Request, m *mockMatch) {
	team, ok := teamParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "team must be 1 or 2"})
		return
	}
	var req struct {
		ScorerPlayerID int64  `json:"scorerPlayerId"`
		PointWonBy     string `json:"pointWonBy"`
	}
	json.NewDecoder(r.Body).Decode(&req)
	if err := b.rally(m, team, req.ScorerPlayerID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": err.Error()})
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (b *broker) handleEvent(eventType string) func(http.ResponseWriter, *http.Request, *mockMatch) {
	return func(w http.ResponseWriter, r *http.Request, m *mockMatch) {
		team, ok := teamParam(r)
		if !ok {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "team must be 1 or 2"})
			return
		}
		playerID, _ := strconv.ParseInt(r.URL.Query().Get("playerId"), 10, 64)

		m.mu.Lock()
		if m.completed {
			m.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "Match is not live"})
			return
		}
		ev := m.appendEvent(eventType, team, playerID)
		m.mu.Unlock()

		b.push(m.id, events.PushEvent, ev)
		w.WriteHeader(http.StatusOK)
	}
}

func (b *broker) handleUndo(w http.ResponseWriter, _ *http.Request, m *mockMatch) {
	m.mu.Lock()
	if len(m.evts) == 0 {
		m.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Nothing to undo"})
		return
	}
	last := m.evts[len(m.evts)-1]
	m.evts = m.evts[:len(m.evts)-1]
	if last.EventType == "GOAL" || last.EventType == "POINT" {
		if *last.Team == 1 {
			m.scoreA--
			m.setPts[0] = max(m.setPts[0]-1, 0)
		} else {
			m.scoreB--
			m.setPts[1] = max(m.setPts[1]-1, 0)
		}
	}
	update := m.scoreUpdate()
	m.mu.Unlock()

	b.push(m.id, events.PushScoreUpdate, update)
	w.WriteHeader(http.StatusOK)
}

func (b *broker) handleFinish(w http.ResponseWriter, _ *http.Request, m *mockMatch) {
	m.mu.Lock()
	if m.completed {
		m.mu.Unlock()
		writeJSON(w, http.StatusConflict, map[string]string{"message": "Match already finished"})
		return
	}
	done := m.finish()
	m.mu.Unlock()

	b.push(m.id, events.PushMatchCompleted, done)
	w.WriteHeader(http.StatusOK)
}

// ── Match simulation ────────────────────────────────────────

func (m *mockMatch) appendEvent(eventType string, team int, playerID int64) events.EventData {
	id := m.nextEvent
	m.nextEvent++
	minute := m.elapsed/60 + 1
	ev := events.EventData{ID: &id, EventType: eventType, Team: &team, MatchMinute: &minute}
	if playerID != 0 {
		ev.PlayerID = &playerID
	}
	for _, p := range append(append([]player{}, m.players1...), m.players2...) {
		if p.ID == playerID {
			ev.PlayerName = p.Name
		}
	}
	m.evts = append(m.evts, ev)
	return ev
}

func (m *mockMatch) scoreUpdate() map[string]any {
	if !m.setBased {
		return map[string]any{"team1TotalScore": m.scoreA, "team2TotalScore": m.scoreB}
	}
	return map[string]any{
		"team1TotalScore":       m.scoreA,
		"team2TotalScore":       m.scoreB,
		"team1SetsWon":          m.setsWon[0],
		"team2SetsWon":          m.setsWon[1],
		"team1CurrentSetPoints": m.setPts[0],
		"team2CurrentSetPoints": m.setPts[1],
		"currentSet":            m.set,
	}
}

func (m *mockMatch) finish() map[string]any {
	m.completed = true
	m.running = false
	winnerTeam := 0
	switch {
	case m.setsWon[0] > m.setsWon[1] || (!m.setBased && m.scoreA > m.scoreB):
		m.winner, winnerTeam = m.team1, 1
	case m.setsWon[1] > m.setsWon[0] || (!m.setBased && m.scoreB > m.scoreA):
		m.winner, winnerTeam = m.team2, 2
	}
	return map[string]any{
		"winnerName":      m.winner,
		"winnerTeamId":    winnerTeam,
		"team1Name":       m.team1,
		"team2Name":       m.team2,
		"team1TotalScore": m.scoreA,
		"team2TotalScore": m.scoreB,
	}
}

func (b *broker) goal(m *mockMatch, team int, playerID int64) error {
	m.mu.Lock()
	if m.completed {
		m.mu.Unlock()
		return errNotLive
	}
	if team == 1 {
		m.scoreA++
	} else {
		m.scoreB++
	}
	ev := m.appendEvent("GOAL", team, playerID)
	update := m.scoreUpdate()
	m.mu.Unlock()

	b.push(m.id, events.PushEvent, ev)
	b.push(m.id, events.PushScoreUpdate, update)
	return nil
}

func (b *broker) rally(m *mockMatch, team int, playerID int64) error {
	m.mu.Lock()
	if m.completed {
		m.mu.Unlock()
		return errNotLive
	}
	if !m.setBased {
		m.mu.Unlock()
		return errors.New("Rally scoring is only for set-based matches")
	}
	idx := team - 1
	m.setPts[idx]++
	if team == 1 {
		m.scoreA++
	} else {
		m.scoreB++
	}
	m.appendEvent("POINT", team, playerID)

	var setDone, matchDone map[string]any
	if m.setPts[idx] >= pointsPerSet && m.setPts[idx]-m.setPts[1-idx] >= 2 {
		m.setsWon[idx]++
		next := m.set + 1
		setDone = map[string]any{
			"id":            m.nextEvent,
			"setNumber":     m.set,
			"team1SetScore": m.setPts[0],
			"team2SetScore": m.setPts[1],
			"winnerTeamId":  team,
			"team1SetsWon":  m.setsWon[0],
			"team2SetsWon":  m.setsWon[1],
			"nextSetNumber": next,
		}
		m.nextEvent++
		if m.setsWon[idx] >= setsToWin {
			matchDone = m.finish()
		} else {
			m.set = next
			m.setPts = [2]int{}
		}
	}
	update := m.scoreUpdate()
	m.mu.Unlock()

	if setDone != nil {
		b.push(m.id, events.PushSetCompleted, setDone)
	}
	b.push(m.id, events.PushScoreUpdate, update)
	if matchDone != nil {
		b.push(m.id, events.PushMatchCompleted, matchDone)
	}
	return nil
}

// tickMatches advances clocks and scores at random so an idle operator
// still sees pushes arrive.
func tickMatches(b *broker) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for range ticker.C {
		for _, m := range matches {
			m.mu.Lock()
			if m.running {
				m.elapsed++
			}
			live := !m.completed
			m.mu.Unlock()
			if !live {
				continue
			}
			if m.sport == "Badminton" && rand.Intn(3) == 0 {
				team := rand.Intn(2) + 1
				b.rally(m, team, pick(m, team))
			}
			if m.sport == "Football" && rand.Intn(40) == 0 {
				team := rand.Intn(2) + 1
				b.goal(m, team, pick(m, team))
			}
		}
	}
}

func pick(m *mockMatch, team int) int64 {
	players := m.players1
	if team == 2 {
		players = m.players2
	}
	return players[rand.Intn(len(players))].ID
}

// ── STOMP broker ────────────────────────────────────────────

type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
	subs map[string]string // subscription id -> destination
}

func (c *client) write(f stomp_ws.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, f.Marshal())
}

type broker struct {
	mu      sync.Mutex
	clients map[*client]bool
	msgSeq  int64
}

func newBroker() *broker {
	return &broker{clients: make(map[*client]bool)}
}

func (b *broker) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, subs: make(map[string]string)}
	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[ws] client connected\n")

	defer func() {
		b.mu.Lock()
		delete(b.clients, c)
		b.mu.Unlock()
		conn.Close()
		fmt.Fprintf(os.Stderr, "[ws] client disconnected\n")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frames, err := stomp_ws.ParseFrames(data)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ws] bad frame: %v\n", err)
			continue
		}
		for _, f := range frames {
			if !b.handleFrame(c, f) {
				return
			}
		}
	}
}

func (b *broker) handleFrame(c *client, f stomp_ws.Frame) bool {
	switch f.Command {
	case "CONNECT", "STOMP":
		c.write(stomp_ws.Frame{Command: "CONNECTED", Headers: map[string]string{"version": "1.2", "heart-beat": "0,0"}})
	case "SUBSCRIBE":
		b.mu.Lock()
		c.subs[f.Header("id")] = f.Header("destination")
		b.mu.Unlock()
		fmt.Fprintf(os.Stderr, "[ws] subscribe %s\n", f.Header("destination"))
	case "UNSUBSCRIBE":
		b.mu.Lock()
		delete(c.subs, f.Header("id"))
		b.mu.Unlock()
	case "DISCONNECT":
		if r := f.Header("receipt"); r != "" {
			c.write(stomp_ws.Frame{Command: "RECEIPT", Headers: map[string]string{"receipt-id": r}})
		}
		return false
	}
	return true
}

// push broadcasts an envelope to every subscriber of the match topic.
func (b *broker) push(matchID int64, typ events.PushType, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	body, err := json.Marshal(events.Envelope{Type: typ, MatchID: matchID, Data: raw})
	if err != nil {
		return
	}
	topic := events.MatchTopic(matchID)

	b.mu.Lock()
	type target struct {
		c     *client
		subID string
	}
	var targets []target
	for c := range b.clients {
		for id, dest := range c.subs {
			if dest == topic {
				targets = append(targets, target{c, id})
			}
		}
	}
	b.msgSeq++
	msgID := b.msgSeq
	b.mu.Unlock()

	for _, t := range targets {
		t.c.write(stomp_ws.Frame{
			Command: "MESSAGE",
			Headers: map[string]string{
				"destination":  topic,
				"subscription": t.subID,
				"message-id":   strconv.FormatInt(msgID, 10),
				"content-type": "application/json",
			},
			Body: body,
		})
	}
}
