package backend_http

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
)

// LiveMatch is one row of GET /matches/live.
type LiveMatch struct {
	MatchID    int64       `json:"matchId"`
	SportType  string      `json:"sportType"`
	SportName  string      `json:"sportName"`
	TeamAName  string      `json:"teamAName"`
	TeamBName  string      `json:"teamBName"`
	ScoreA     int         `json:"scoreA"`
	ScoreB     int         `json:"scoreB"`
	Status     string      `json:"status"`
	StartTime  string      `json:"startTime"`
	VenueName  string      `json:"venueName"`
	TimerState *TimerState `json:"timerState"`
}

type TimerState struct {
	ElapsedTimeInSeconds int  `json:"elapsedTimeInSeconds"`
	Running              bool `json:"running"`
}

func (m LiveMatch) Summary() match.Summary {
	s := match.Summary{
		ID:         m.MatchID,
		SportName:  m.SportType,
		Side1Name:  m.TeamAName,
		Side2Name:  m.TeamBName,
		Side1Score: m.ScoreA,
		Side2Score: m.ScoreB,
		Status:     m.Status,
		Venue:      m.VenueName,
	}
	if s.SportName == "" {
		s.SportName = m.SportName
	}
	if t, err := time.Parse(time.RFC3339, m.StartTime); err == nil {
		s.StartTime = t
	}
	if m.TimerState != nil {
		s.ElapsedSeconds = m.TimerState.ElapsedTimeInSeconds
		s.Running = m.TimerState.Running
	}
	return s
}

// LiveScore is GET /match/{id}/live-score. Set-based matches fill the
// top-level fields; continuous matches report data.scoreA/scoreB.
type LiveScore struct {
	SportName             string         `json:"sportName"`
	Team1TotalScore       *int           `json:"team1TotalScore"`
	Team2TotalScore       *int           `json:"team2TotalScore"`
	Team1SetsWon          *int           `json:"team1SetsWon"`
	Team2SetsWon          *int           `json:"team2SetsWon"`
	Team1CurrentSetPoints *int           `json:"team1CurrentSetPoints"`
	Team2CurrentSetPoints *int           `json:"team2CurrentSetPoints"`
	CurrentSet            *int           `json:"currentSet"`
	Data                  *LiveScoreData `json:"data"`
}

type LiveScoreData struct {
	ScoreA *int               `json:"scoreA"`
	ScoreB *int               `json:"scoreB"`
	Events []events.EventData `json:"events"`
}

// ScoringEvents projects the snapshot's event list, oldest first. Events
// without a backend id keep SequenceID 0.
func (l LiveScore) ScoringEvents() []match.ScoringEvent {
	if l.Data == nil {
		return nil
	}
	out := make([]match.ScoringEvent, 0, len(l.Data.Events))
	for _, e := range l.Data.Events {
		out = append(out, e.ToScoringEvent(e.SequenceID(events.Envelope{})))
	}
	return out
}

// MatchDetail is GET /match/{id}.
type MatchDetail struct {
	ID           int64       `json:"id"`
	Sport        *NamedRef   `json:"sport"`
	SportName    string      `json:"sportName"`
	Status       string      `json:"status"`
	Team1        *Team       `json:"team1"`
	Team2        *Team       `json:"team2"`
	Team1Name    string      `json:"team1Name"`
	Team2Name    string      `json:"team2Name"`
	Team1Score   *int        `json:"team1Score"`
	Team2Score   *int        `json:"team2Score"`
	Team1SetsWon *int        `json:"team1SetsWon"`
	Team2SetsWon *int        `json:"team2SetsWon"`
	Team1Players []PlayerRef `json:"team1Players"`
	Team2Players []PlayerRef `json:"team2Players"`
	WinnerName   string      `json:"winnerName"`
}

type NamedRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Team struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	TeamMembers []PlayerRef `json:"teamMembers"`
}

// PlayerRef covers both roster shapes: match players ({id|playerId, name|playerName})
// and team members ({id, user:{id, name, username}}).
type PlayerRef struct {
	ID         int64  `json:"id"`
	PlayerID   int64  `json:"playerId"`
	Name       string `json:"name"`
	PlayerName string `json:"playerName"`
	Username   string `json:"username"`
	User       *struct {
		ID       int64  `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
	} `json:"user"`
}

func (p PlayerRef) Player() match.Player {
	out := match.Player{ID: p.ID, Name: p.Name, Username: p.Username}
	if out.ID == 0 {
		out.ID = p.PlayerID
	}
	if out.Name == "" {
		out.Name = p.PlayerName
	}
	if p.User != nil {
		if out.Name == "" {
			out.Name = p.User.Name
		}
		if out.Username == "" {
			out.Username = p.User.Username
		}
		if out.ID == 0 {
			out.ID = p.User.ID
		}
	}
	if out.Name == "" {
		out.Name = "Unknown"
	}
	return out
}

// SportLabel returns sport.name, falling back to sportName.
func (d MatchDetail) SportLabel() string {
	if d.Sport != nil && d.Sport.Name != "" {
		return d.Sport.Name
	}
	return d.SportName
}

func (d MatchDetail) Identity() match.Identity {
	id := match.Identity{ID: d.ID, SportName: d.SportLabel(), Side1Name: d.Team1Name, Side2Name: d.Team2Name}
	if d.Team1 != nil {
		id.Side1ID = d.Team1.ID
		if d.Team1.Name != "" {
			id.Side1Name = d.Team1.Name
		}
	}
	if d.Team2 != nil {
		id.Side2ID = d.Team2.ID
		if d.Team2.Name != "" {
			id.Side2Name = d.Team2.Name
		}
	}
	return id
}

// Roster prefers the match-specific player lists over the teams' members.
// An explicit empty list still wins.
func (d MatchDetail) Roster() match.Roster {
	pick := func(players []PlayerRef, team *Team) []match.Player {
		if players == nil && team != nil {
			players = team.TeamMembers
		}
		out := make([]match.Player, 0, len(players))
		for _, p := range players {
			out = append(out, p.Player())
		}
		return out
	}
	return match.Roster{
		Side1: pick(d.Team1Players, d.Team1),
		Side2: pick(d.Team2Players, d.Team2),
	}
}

// Snapshot bundles the two reads the reconciler needs for one refresh.
type Snapshot struct {
	Score  *LiveScore
	Detail *MatchDetail
}

func (c *Client) LiveMatches(ctx context.Context) ([]match.Summary, error) {
	var rows []LiveMatch
	if err := c.getJSON(ctx, "live_matches", "/matches/live", &rows); err != nil {
		return nil, err
	}
	out := make([]match.Summary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (c *Client) LiveScore(ctx context.Context, matchID int64) (*LiveScore, error) {
	var ls LiveScore
	if err := c.getJSON(ctx, "live_score", fmt.Sprintf("/match/%d/live-score", matchID), &ls); err != nil {
		return nil, err
	}
	return &ls, nil
}

func (c *Client) MatchDetail(ctx context.Context, matchID int64) (*MatchDetail, error) {
	var d MatchDetail
	if err := c.getJSON(ctx, "match_detail", fmt.Sprintf("/match/%d", matchID), &d); err != nil {
		return nil, err
	}
	if d.ID == 0 {
		d.ID = matchID
	}
	return &d, nil
}

func (c *Client) Roster(ctx context.Context, matchID int64) (match.Roster, error) {
	d, err := c.MatchDetail(ctx, matchID)
	if err != nil {
		return match.Roster{}, err
	}
	return d.Roster(), nil
}

// Snapshot fetches live score and detail concurrently. Either failure fails
// the whole snapshot.
func (c *Client) Snapshot(ctx context.Context, matchID int64) (Snapshot, error) {
	var snap Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ls, err := c.LiveScore(gctx, matchID)
		snap.Score = ls
		return err
	})
	g.Go(func() error {
		d, err := c.MatchDetail(gctx, matchID)
		snap.Detail = d
		return err
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}
