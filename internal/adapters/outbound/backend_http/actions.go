package backend_http

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

func sideQuery(side match.Side, playerID int64) string {
	q := url.Values{}
	q.Set("team", strconv.Itoa(int(side)))
	if playerID != 0 {
		q.Set("playerId", strconv.FormatInt(playerID, 10))
	}
	return q.Encode()
}

// Goal records a continuous-model score.
func (c *Client) Goal(ctx context.Context, matchID int64, side match.Side, playerID int64) error {
	return c.post(ctx, "goal", fmt.Sprintf("/match/%d/goal?%s", matchID, sideQuery(side, playerID)), nil)
}

type rallyScoreRequest struct {
	ScorerPlayerID int64  `json:"scorerPlayerId"`
	PointWonBy     string `json:"pointWonBy"`
}

// RallyScore records a set-based point.
func (c *Client) RallyScore(ctx context.Context, matchID int64, side match.Side, scorerID int64, pointWonBy string) error {
	return c.post(ctx, "rally_score",
		fmt.Sprintf("/match/%d/rally-score/team%d", matchID, int(side)),
		rallyScoreRequest{ScorerPlayerID: scorerID, PointWonBy: pointWonBy})
}

func (c *Client) YellowCard(ctx context.Context, matchID int64, side match.Side, playerID int64) error {
	return c.post(ctx, "yellow_card", fmt.Sprintf("/match/%d/yellow-card?%s", matchID, sideQuery(side, playerID)), nil)
}

func (c *Client) RedCard(ctx context.Context, matchID int64, side match.Side, playerID int64) error {
	return c.post(ctx, "red_card", fmt.Sprintf("/match/%d/red-card?%s", matchID, sideQuery(side, playerID)), nil)
}

func (c *Client) Substitution(ctx context.Context, matchID int64, side match.Side, playerID int64) error {
	return c.post(ctx, "substitution", fmt.Sprintf("/match/%d/substitution?%s", matchID, sideQuery(side, playerID)), nil)
}

// Undo removes the backend's most recent scoring action.
func (c *Client) Undo(ctx context.Context, matchID int64) error {
	return c.post(ctx, "undo", fmt.Sprintf("/match/%d/scoring-undo", matchID), struct{}{})
}

func (c *Client) Complete(ctx context.Context, matchID int64) error {
	return c.post(ctx, "complete", fmt.Sprintf("/match-scoring/match/%d/complete", matchID), nil)
}

type abandonRequest struct {
	Reason string `json:"reason"`
}

func (c *Client) Abandon(ctx context.Context, matchID int64, reason string) error {
	return c.post(ctx, "abandon", fmt.Sprintf("/match/%d/abandon", matchID), abandonRequest{Reason: reason})
}
