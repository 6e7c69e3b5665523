// Package dispatch sends operator scoring commands to the backend and asks
// the reconciler to re-read the result. It never edits local state itself.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charleschow/live-scoring/internal/core/reconciler"
	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

// Point types accepted by the rally-score endpoint.
const (
	PointAce    = "ACE"
	PointSmash  = "SMASH"
	PointWinner = "WINNER"
	PointError  = "ERROR"
)

const DefaultAbandonReason = "Cancelled by admin"

// Backend is the command side of the REST client.
type Backend interface {
	Goal(ctx context.Context, matchID int64, side match.Side, playerID int64) error
	RallyScore(ctx context.Context, matchID int64, side match.Side, scorerID int64, pointWonBy string) error
	YellowCard(ctx context.Context, matchID int64, side match.Side, playerID int64) error
	RedCard(ctx context.Context, matchID int64, side match.Side, playerID int64) error
	Substitution(ctx context.Context, matchID int64, side match.Side, playerID int64) error
	Undo(ctx context.Context, matchID int64) error
	Complete(ctx context.Context, matchID int64) error
	Abandon(ctx context.Context, matchID int64, reason string) error
}

// Reconciler is the part of the session the dispatcher reads and refreshes.
type Reconciler interface {
	View(ctx context.Context) (reconciler.View, error)
	Refresh(ctx context.Context) error
	ResyncAfterUndo(ctx context.Context) error
}

// ValidationError blocks a command before any network call.
type ValidationError struct {
	Action string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Action, e.Reason)
}

// CardColor selects the card endpoint.
type CardColor string

const (
	CardYellow CardColor = "yellow"
	CardRed    CardColor = "red"
)

// Dispatcher validates and sends commands for the selected match.
type Dispatcher struct {
	backend Backend
	session Reconciler
}

func New(backend Backend, session Reconciler) *Dispatcher {
	return &Dispatcher{backend: backend, session: session}
}

// AddPoint scores one rally point in a set-based match.
func (d *Dispatcher) AddPoint(ctx context.Context, side match.Side, actorID int64, pointWonBy string) error {
	const action = "add_point"
	v, err := d.scoring(ctx, action, side, actorID)
	if err != nil {
		return err
	}
	if v.State.Model != match.ModelSetBased {
		return d.invalid(action, "points are only recorded for set-based matches")
	}
	pointWonBy, err = normalizePointType(pointWonBy)
	if err != nil {
		return d.invalid(action, err.Error())
	}
	return d.send(ctx, action, func() error {
		return d.backend.RallyScore(ctx, v.Selected, side, actorID, pointWonBy)
	})
}

// AddGoal scores for a continuous match.
func (d *Dispatcher) AddGoal(ctx context.Context, side match.Side, actorID int64) error {
	const action = "add_goal"
	v, err := d.scoring(ctx, action, side, actorID)
	if err != nil {
		return err
	}
	if v.State.Model == match.ModelSetBased {
		return d.invalid(action, "set-based matches are scored by rally points")
	}
	return d.send(ctx, action, func() error {
		return d.backend.Goal(ctx, v.Selected, side, actorID)
	})
}

// Score routes to AddPoint or AddGoal by the match's scoring model.
func (d *Dispatcher) Score(ctx context.Context, side match.Side, actorID int64, pointWonBy string) error {
	v, err := d.session.View(ctx)
	if err != nil {
		return err
	}
	if v.State.Model == match.ModelSetBased {
		return d.AddPoint(ctx, side, actorID, pointWonBy)
	}
	return d.AddGoal(ctx, side, actorID)
}

func (d *Dispatcher) AddCard(ctx context.Context, color CardColor, side match.Side, actorID int64) error {
	action := "add_card"
	if color != CardYellow && color != CardRed {
		return d.invalid(action, fmt.Sprintf("unknown card color %q", color))
	}
	v, err := d.scoring(ctx, action, side, actorID)
	if err != nil {
		return err
	}
	return d.send(ctx, string(color)+"_card", func() error {
		if color == CardRed {
			return d.backend.RedCard(ctx, v.Selected, side, actorID)
		}
		return d.backend.YellowCard(ctx, v.Selected, side, actorID)
	})
}

func (d *Dispatcher) AddSubstitution(ctx context.Context, side match.Side, actorID int64) error {
	const action = "add_substitution"
	v, err := d.scoring(ctx, action, side, actorID)
	if err != nil {
		return err
	}
	return d.send(ctx, "substitution", func() error {
		return d.backend.Substitution(ctx, v.Selected, side, actorID)
	})
}

// UndoLast is a no-op when the event log is empty. On success the log is
// replaced by the backend's list.
func (d *Dispatcher) UndoLast(ctx context.Context) error {
	const action = "undo"
	v, err := d.selected(ctx, action)
	if err != nil {
		return err
	}
	if len(v.Events) == 0 {
		telemetry.Debugf("dispatch: undo with empty log, nothing to do")
		return nil
	}
	if err := d.call(action, func() error { return d.backend.Undo(ctx, v.Selected) }); err != nil {
		return err
	}
	if err := d.session.ResyncAfterUndo(ctx); err != nil && !errors.Is(err, reconciler.ErrNoSelection) {
		telemetry.Warnf("dispatch: resync after undo: %v", err)
	}
	return nil
}

func (d *Dispatcher) CompleteMatch(ctx context.Context) error {
	const action = "complete"
	v, err := d.selected(ctx, action)
	if err != nil {
		return err
	}
	return d.send(ctx, action, func() error { return d.backend.Complete(ctx, v.Selected) })
}

func (d *Dispatcher) AbandonMatch(ctx context.Context, reason string) error {
	const action = "abandon"
	v, err := d.selected(ctx, action)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		reason = DefaultAbandonReason
	}
	return d.send(ctx, action, func() error { return d.backend.Abandon(ctx, v.Selected, reason) })
}

func (d *Dispatcher) selected(ctx context.Context, action string) (reconciler.View, error) {
	v, err := d.session.View(ctx)
	if err != nil {
		return v, err
	}
	if v.Selected == 0 {
		return v, d.invalid(action, "no match selected")
	}
	return v, nil
}

// scoring checks the selection, side and actor. The actor must belong to
// the side when a roster is loaded.
func (d *Dispatcher) scoring(ctx context.Context, action string, side match.Side, actorID int64) (reconciler.View, error) {
	v, err := d.selected(ctx, action)
	if err != nil {
		return v, err
	}
	if !side.Valid() {
		return v, d.invalid(action, "select a side")
	}
	if actorID <= 0 {
		return v, d.invalid(action, "select a player")
	}
	if !v.Roster.Empty() {
		if _, ok := v.Roster.Find(side, actorID); !ok {
			return v, d.invalid(action, fmt.Sprintf("player %d is not on %s", actorID, v.Identity.Name(side)))
		}
	}
	return v, nil
}

func normalizePointType(p string) (string, error) {
	p = strings.ToUpper(strings.TrimSpace(p))
	switch p {
	case "":
		return PointAce, nil
	case PointAce, PointSmash, PointWinner, PointError:
		return p, nil
	default:
		return "", fmt.Errorf("unknown point type %q", p)
	}
}

func (d *Dispatcher) invalid(action, reason string) error {
	telemetry.Metrics.ValidationErrors.Inc()
	return &ValidationError{Action: action, Reason: reason}
}

// send runs fn and refreshes on success. A failed refresh is already
// surfaced by the reconciler as a soft error, so it does not fail the command.
func (d *Dispatcher) send(ctx context.Context, action string, fn func() error) error {
	if err := d.call(action, fn); err != nil {
		return err
	}
	if err := d.session.Refresh(ctx); err != nil && !errors.Is(err, reconciler.ErrNoSelection) {
		telemetry.Warnf("dispatch: refresh after %s: %v", action, err)
	}
	return nil
}

func (d *Dispatcher) call(action string, fn func() error) error {
	if err := fn(); err != nil {
		telemetry.Metrics.ActionErrors.WithLabelValues(action).Inc()
		telemetry.Warnf("dispatch: %s: %v", action, err)
		return err
	}
	telemetry.Metrics.ActionsSent.WithLabelValues(action).Inc()
	telemetry.Infof("dispatch: %s ok", action)
	return nil
}
