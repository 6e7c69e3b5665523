package events

import "time"

// Event is the envelope that flows through the in-process bus.
// Every reconciler transition (score change, set/match completion, soft error) is wrapped in one.
type Event struct {
	ID        string
	Type      EventType
	MatchID   int64
	Timestamp time.Time
	Payload   any
}

type EventType string

const (
	// Reconciler transitions
	EventMatchSelected  EventType = "match_selected"
	EventScoreChanged   EventType = "score_changed"
	EventScoringEvent   EventType = "scoring_event"
	EventSetCompleted   EventType = "set_completed"
	EventMatchCompleted EventType = "match_completed"

	// Non-blocking operator notices (failed fetch, match no longer live)
	EventSoftError EventType = "soft_error"

	// Push channel connection status
	EventChannelStatus EventType = "channel_status"
)
