package match

import (
	"fmt"
	"strings"
)

type EventKind string

const (
	KindGoal         EventKind = "goal"
	KindPoint        EventKind = "point"
	KindYellowCard   EventKind = "yellow_card"
	KindRedCard      EventKind = "red_card"
	KindSubstitution EventKind = "substitution"
)

// ParseEventKind maps the backend's eventType strings. Empty means goal,
// matching how the backend labels plain scoring events.
func ParseEventKind(v string) (EventKind, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case "", "GOAL":
		return KindGoal, nil
	case "POINT", "RALLY_POINT", "RALLY":
		return KindPoint, nil
	case "YELLOW", "YELLOW_CARD":
		return KindYellowCard, nil
	case "RED", "RED_CARD":
		return KindRedCard, nil
	case "SUBSTITUTION", "SUB":
		return KindSubstitution, nil
	default:
		return "", fmt.Errorf("unknown event type %q", v)
	}
}

// ScoringEvent is one entry of the event log. SequenceID is assigned by the
// backend and is the de-duplication key.
type ScoringEvent struct {
	SequenceID int64     `json:"sequenceId"`
	Kind       EventKind `json:"kind"`
	Side       Side      `json:"side"`
	ActorName  string    `json:"actorName"`
	ActorID    *int64    `json:"actorId,omitempty"`
	ClockLabel string    `json:"matchClock"`
}

// ClockLabel renders a match minute the way the scoring sheet shows it.
func ClockLabel(minute *int) string {
	if minute == nil || *minute <= 0 {
		return "0'"
	}
	return fmt.Sprintf("%d'", *minute)
}
