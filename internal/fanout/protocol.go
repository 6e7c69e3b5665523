package fanout

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/events"
)

// Envelope is the wire format for events sent over the live feed.
type Envelope struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	MatchID   int64           `json:"matchId,omitempty"`
	Timestamp time.Time       `json:"ts"`
	Payload   json.RawMessage `json:"payload"`
}

// MarshalEvent serializes an Event into a JSON-encoded Envelope.
func MarshalEvent(evt events.Event) ([]byte, error) {
	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	env := Envelope{
		Type:      string(evt.Type),
		ID:        evt.ID,
		MatchID:   evt.MatchID,
		Timestamp: evt.Timestamp,
		Payload:   payload,
	}
	return json.Marshal(env)
}

// UnmarshalEvent deserializes a JSON Envelope back into a typed Event.
func UnmarshalEvent(data []byte) (events.Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Event{}, fmt.Errorf("unmarshal envelope: %w", err)
	}

	evt := events.Event{
		ID:        env.ID,
		Type:      events.EventType(env.Type),
		MatchID:   env.MatchID,
		Timestamp: env.Timestamp,
	}

	var err error
	switch evt.Type {
	case events.EventMatchSelected:
		evt.Payload, err = decode[match.Identity](env.Payload)
	case events.EventScoreChanged:
		evt.Payload, err = decode[events.ScoreChanged](env.Payload)
	case events.EventScoringEvent:
		evt.Payload, err = decode[events.ScoringEventAppended](env.Payload)
	case events.EventSetCompleted:
		evt.Payload, err = decode[events.SetCompleted](env.Payload)
	case events.EventMatchCompleted:
		evt.Payload, err = decode[events.MatchCompleted](env.Payload)
	case events.EventChannelStatus:
		evt.Payload, err = decode[events.ChannelStatus](env.Payload)
	case events.EventSoftError:
		var se events.SoftError
		se, err = decode[events.SoftError](env.Payload)
		if se.Detail != "" {
			se.Err = errors.New(se.Detail)
		}
		evt.Payload = se
	default:
		return evt, fmt.Errorf("unknown event type: %s", env.Type)
	}
	if err != nil {
		return evt, fmt.Errorf("unmarshal %s: %w", env.Type, err)
	}
	return evt, nil
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
