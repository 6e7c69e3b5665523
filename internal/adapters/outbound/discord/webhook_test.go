package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charleschow/live-scoring/internal/core/completion"
	"github.com/charleschow/live-scoring/internal/core/state/match"
)

func TestDisabledNotifierIsNoop(t *testing.T) {
	n := NewNotifier("")
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Deliver(context.Background(), completion.Notification{}))
}

func TestDeliverMatchComplete(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.Deliver(context.Background(), completion.Notification{
		Kind: completion.KindMatchComplete, MatchID: 7, Sport: "Badminton",
		WinnerSide: match.Side1, WinnerName: "Aces", FinalScore: "42 - 30", At: time.Now(),
	})
	require.NoError(t, err)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Winner: Aces", got.Embeds[0].Title)
	assert.Equal(t, ColorGreen, got.Embeds[0].Color)
	assert.Contains(t, got.Embeds[0].Fields, Field{Name: "Final score", Value: "42 - 30", Inline: true})
}

func TestDeliverSetCompleteAndErrors(t *testing.T) {
	status := http.StatusOK
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(status)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	note := completion.Notification{Kind: completion.KindSetComplete, MatchID: 7, SetNumber: 3, SetScore: "21-19", SetsWon: "2-1", WinnerName: "Birds"}
	require.NoError(t, n.Deliver(context.Background(), note))
	assert.Equal(t, "Set 3 Complete!", got.Embeds[0].Title)
	assert.Contains(t, got.Embeds[0].Fields, Field{Name: "Set", Value: "3rd", Inline: true})

	status = http.StatusTooManyRequests
	assert.Error(t, n.Deliver(context.Background(), note))
	status = http.StatusInternalServerError
	assert.Error(t, n.Deliver(context.Background(), note))
}
