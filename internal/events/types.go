package events

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

// PushType is the "type" field of a message on a match topic.
type PushType string

const (
	PushScoreUpdate    PushType = "SCORE_UPDATE"
	PushSetCompleted   PushType = "SET_COMPLETED"
	PushMatchCompleted PushType = "MATCH_COMPLETED"
	PushEvent          PushType = "EVENT"
	PushGoal           PushType = "GOAL"
	PushCard           PushType = "CARD"
)

// MatchTopic is the push destination for one match.
func MatchTopic(matchID int64) string {
	return fmt.Sprintf("/topic/match/%d", matchID)
}

// Envelope is the wire format of every message on /topic/match/{id}.
// Data stays raw until the reconciler decides which shape to sniff for.
type Envelope struct {
	Type    PushType        `json:"type"`
	ID      *int64          `json:"id,omitempty"`
	MatchID int64           `json:"matchId,omitempty"`
	Data    json.RawMessage `json:"data"`
}

var ErrMissingType = errors.New("envelope has no type")

// DecodeEnvelope parses one STOMP MESSAGE body.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, ErrMissingType
	}
	return env, nil
}

// IsDiscreteEvent reports whether the message carries a goal/card/substitution.
func (e Envelope) IsDiscreteEvent() bool {
	return e.Type == PushEvent || e.Type == PushGoal || e.Type == PushCard
}

func (e Envelope) decode(out any) error {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return fmt.Errorf("%s: empty data", e.Type)
	}
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("unmarshal %s: %w", e.Type, err)
	}
	return nil
}

// ScoreUpdateData is the SCORE_UPDATE payload. Every field is optional;
// a continuous-score payload never carries set fields.
type ScoreUpdateData struct {
	Team1TotalScore       *int `json:"team1TotalScore"`
	Team2TotalScore       *int `json:"team2TotalScore"`
	Team1SetsWon          *int `json:"team1SetsWon"`
	Team2SetsWon          *int `json:"team2SetsWon"`
	Team1CurrentSetPoints *int `json:"team1CurrentSetPoints"`
	Team2CurrentSetPoints *int `json:"team2CurrentSetPoints"`
	CurrentSet            *int `json:"currentSet"`
}

// SetOriented reports whether the payload carries set structure.
func (d ScoreUpdateData) SetOriented() bool {
	return d.Team1SetsWon != nil || d.Team2SetsWon != nil || d.CurrentSet != nil
}

func (e Envelope) ScoreUpdate() (ScoreUpdateData, error) {
	var d ScoreUpdateData
	err := e.decode(&d)
	return d, err
}

// SetCompletedData is sent when the backend closes a set, before the
// SCORE_UPDATE that opens the next one.
type SetCompletedData struct {
	ID            *int64 `json:"id"`
	SetNumber     int    `json:"setNumber"`
	Team1SetScore int    `json:"team1SetScore"`
	Team2SetScore int    `json:"team2SetScore"`
	WinnerTeamID  int    `json:"winnerTeamId"` // 1 or 2
	Team1SetsWon  *int   `json:"team1SetsWon"`
	Team2SetsWon  *int   `json:"team2SetsWon"`
	NextSetNumber *int   `json:"nextSetNumber"`
}

func (e Envelope) SetCompleted() (SetCompletedData, error) {
	var d SetCompletedData
	err := e.decode(&d)
	return d, err
}

type MatchCompletedData struct {
	ID              *int64 `json:"id"`
	WinnerName      string `json:"winnerName"`
	WinnerTeamID    int    `json:"winnerTeamId"`
	Team1Name       string `json:"team1Name"`
	Team2Name       string `json:"team2Name"`
	Team1TotalScore *int   `json:"team1TotalScore"`
	Team2TotalScore *int   `json:"team2TotalScore"`
	ScoreA          *int   `json:"scoreA"`
	ScoreB          *int   `json:"scoreB"`
}

func (e Envelope) MatchCompleted() (MatchCompletedData, error) {
	var d MatchCompletedData
	err := e.decode(&d)
	return d, err
}

// EventData is a discrete scoring action (goal, card, substitution).
type EventData struct {
	ID          *int64 `json:"id"`
	EventID     *int64 `json:"eventId"`
	EventType   string `json:"eventType"`
	Team        *int   `json:"team"`
	ScoringTeam *int   `json:"scoringTeam"`
	PlayerName  string `json:"playerName"`
	PlayerID    *int64 `json:"playerId"`
	MatchMinute *int   `json:"matchMinute"`
}

func (e Envelope) Event() (EventData, error) {
	var d EventData
	err := e.decode(&d)
	return d, err
}

// SequenceID returns the backend event id, falling back to the envelope id.
func (d EventData) SequenceID(env Envelope) int64 {
	switch {
	case d.ID != nil:
		return *d.ID
	case d.EventID != nil:
		return *d.EventID
	case env.ID != nil:
		return *env.ID
	default:
		return 0
	}
}

// ToScoringEvent projects the wire event into a log entry. Team 1 is side 1;
// anything else is side 2.
func (d EventData) ToScoringEvent(seq int64) match.ScoringEvent {
	side := match.Side2
	if (d.Team != nil && *d.Team == 1) || (d.Team == nil && d.ScoringTeam != nil && *d.ScoringTeam == 1) {
		side = match.Side1
	}
	kind, err := match.ParseEventKind(d.EventType)
	if err != nil {
		kind = match.KindGoal
	}
	name := d.PlayerName
	if name == "" {
		name = "Unknown"
	}
	return match.ScoringEvent{
		SequenceID: seq,
		Kind:       kind,
		Side:       side,
		ActorName:  name,
		ActorID:    d.PlayerID,
		ClockLabel: match.ClockLabel(d.MatchMinute),
	}
}

// --- Bus payloads ---

// ScoreChanged is published after any mutation of the live score.
type ScoreChanged struct {
	State  match.LiveScoreState `json:"state"`
	Source string               `json:"source"` // "snapshot" or "push"
}

// SetCompleted hands a closed set to the completion notifier.
type SetCompleted struct {
	Identity   match.Identity   `json:"identity"`
	SequenceID int64            `json:"sequenceId"`
	Data       SetCompletedData `json:"data"`
}

// MatchCompleted hands the final result to the completion notifier.
type MatchCompleted struct {
	Identity   match.Identity `json:"identity"`
	SequenceID int64          `json:"sequenceId"`
	WinnerName string         `json:"winnerName"`
	WinnerSide match.Side     `json:"winnerSide"`
	Side1Total int            `json:"side1Total"`
	Side2Total int            `json:"side2Total"`
}

type ScoringEventAppended struct {
	Event match.ScoringEvent `json:"event"`
}

// SoftError is surfaced to the operator without interrupting the pipeline.
// Err does not survive serialization; Detail carries its text instead.
type SoftError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Err     error  `json:"-"`
}

type ChannelStatus struct {
	Connected bool `json:"connected"`
}
