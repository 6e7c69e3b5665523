package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charleschow/live-scoring/internal/core/state/match"
	"github.com/charleschow/live-scoring/internal/telemetry"
)

// Run polls the live list and refreshes the selected match on a fixed
// interval until ctx is cancelled or the session is closed. The first poll
// runs immediately.
func (s *Session) Run(ctx context.Context) {
	t := time.NewTicker(s.pollEvery)
	defer t.Stop()

	for {
		if err := s.Poll(ctx); err != nil && !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			telemetry.Debugf("reconciler: poll: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-t.C:
		}
	}
}

// Poll runs one cycle: reload the live list, then auto-select or refresh.
func (s *Session) Poll(ctx context.Context) error {
	list, listErr := s.fetch.LiveMatches(ctx)

	var pick, selected int64
	err := s.call(ctx, func() {
		if listErr != nil {
			s.softError("live_matches", "Failed to load live matches", listErr)
			selected = s.selected
			return
		}
		s.applyLiveList(list)
		selected = s.selected
		if s.autoSelect && !s.autoSelected && selected == 0 && len(list) > 0 {
			s.autoSelected = true
			pick = list[0].ID
		}
	})
	if err != nil {
		return err
	}

	switch {
	case pick != 0:
		telemetry.Infof("reconciler: auto-selecting match %d", pick)
		return s.Select(ctx, pick)
	case selected != 0:
		return s.Refresh(ctx)
	}
	return listErr
}

// applyLiveList runs on the actor.
func (s *Session) applyLiveList(list []match.Summary) {
	s.live = list
	if s.selected == 0 {
		return
	}

	sum, ok := s.summary(s.selected)
	if !ok {
		// an empty list is treated as a transient backend hiccup
		if len(list) > 0 && !s.warnedMissing {
			s.warnedMissing = true
			s.softError("live_matches", "The selected match is no longer live",
				fmt.Errorf("match %d not in live list", s.selected))
		}
		return
	}
	s.warnedMissing = false

	if sum.ElapsedSeconds != s.state.ElapsedSeconds || sum.Running != s.state.Running {
		st := s.state
		st.ElapsedSeconds, st.Running = sum.ElapsedSeconds, sum.Running
		s.commit(st, "snapshot")
	}
}

// LiveMatches returns the last loaded live list.
func (s *Session) LiveMatches(ctx context.Context) ([]match.Summary, error) {
	v, err := s.View(ctx)
	return v.Live, err
}
