package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/charleschow/live-scoring/internal/core/completion"
	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

type Notifier struct {
	webhookURL string
	httpClient *http.Client
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (n *Notifier) Enabled() bool { return n.webhookURL != "" }

type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type webhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

func (n *Notifier) SendText(ctx context.Context, msg string) error {
	return n.send(ctx, webhookPayload{Content: msg})
}

func (n *Notifier) SendEmbed(ctx context.Context, embed Embed) error {
	if embed.Timestamp == "" {
		embed.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return n.send(ctx, webhookPayload{Embeds: []Embed{embed}})
}

func (n *Notifier) send(ctx context.Context, payload webhookPayload) error {
	if !n.Enabled() {
		return nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal discord payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 429 {
		telemetry.Warnf("discord: rate limited")
		return fmt.Errorf("discord rate limited")
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("discord webhook: status=%d", resp.StatusCode)
	}

	return nil
}

// --- Completion sink ---

const (
	ColorGreen  = 0x2ECC71
	ColorYellow = 0xF1C40F
	ColorBlue   = 0x3498DB
)

func (n *Notifier) Name() string { return "discord" }

// Deliver posts a set or match completion as an embed.
func (n *Notifier) Deliver(ctx context.Context, note completion.Notification) error {
	embed := Embed{
		Title:       note.Title(),
		Description: note.Message(),
		Color:       ColorBlue,
		Timestamp:   note.At.UTC().Format(time.RFC3339),
	}
	if note.Sport != "" {
		embed.Fields = append(embed.Fields, Field{Name: "Sport", Value: note.Sport, Inline: true})
	}
	embed.Fields = append(embed.Fields, Field{Name: "Match", Value: fmt.Sprintf("#%d", note.MatchID), Inline: true})

	switch note.Kind {
	case completion.KindSetComplete:
		embed.Fields = append(embed.Fields,
			Field{Name: "Set", Value: humanize.Ordinal(note.SetNumber), Inline: true},
			Field{Name: "Set score", Value: note.SetScore, Inline: true},
			Field{Name: "Sets", Value: note.SetsWon, Inline: true},
		)
	case completion.KindMatchComplete:
		embed.Title = fmt.Sprintf("Winner: %s", note.WinnerName)
		embed.Color = ColorGreen
		if note.WinnerSide == match.SideNone {
			embed.Color = ColorYellow
		}
		embed.Fields = append(embed.Fields, Field{Name: "Final score", Value: note.FinalScore, Inline: true})
	}
	return n.SendEmbed(ctx, embed)
}
