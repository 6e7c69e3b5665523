package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charleschow/live-scoring/internal/core/state/match"
)

const (
	dividerHeavy = "========================================================================"
	dividerLight = "~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~~"
)

// PrintScoreboard writes one scoreboard block. Set-based matches show the
// current set and sets won; continuous matches show the running clock.
func PrintScoreboard(w io.Writer, id match.Identity, st match.LiveScoreState, label string) {
	divider := dividerHeavy
	if label == "PUSH" {
		divider = dividerLight
	}

	name1, name2 := sideName(id, match.Side1), sideName(id, match.Side2)
	short1, short2 := shortName(name1), shortName(name2)

	var b strings.Builder
	fmt.Fprintf(&b, "\n[%s %s]  match #%d", label, time.Now().Format("3:04:05.000 PM"), st.MatchID)
	if id.SportName != "" {
		fmt.Fprintf(&b, "  %s", id.SportName)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "%s\n", divider)
	fmt.Fprintf(&b, "  %s vs %s\n", name1, name2)

	switch st.Model {
	case match.ModelSetBased:
		fmt.Fprintf(&b, "    %-38s%s %d  |  %s %d\n", "Points:", short1, st.Side1Total, short2, st.Side2Total)
		fmt.Fprintf(&b, "    %-38s%s %s  |  %s %s\n", setLabel(st.CurrentSet)+":",
			short1, optional(st.Side1SetScore), short2, optional(st.Side2SetScore))
		fmt.Fprintf(&b, "    %-38s%s %s  |  %s %s\n", "Sets won:",
			short1, optional(st.Side1SetsWon), short2, optional(st.Side2SetsWon))
	default:
		clock := st.Clock()
		if !st.Running {
			clock += " (paused)"
		}
		fmt.Fprintf(&b, "    %-38sScore %d-%d  |  %s\n", "Score & time:", st.Side1Total, st.Side2Total, clock)
	}
	if st.Frozen {
		fmt.Fprintf(&b, "    %-38s%s\n", "Final:", winnerLine(st.WinnerTag))
	}
	fmt.Fprintf(&b, "%s\n", divider)

	fmt.Fprint(w, b.String())
}

// PrintEvent writes a one-line event log entry.
func PrintEvent(w io.Writer, id match.Identity, e match.ScoringEvent) {
	actor := e.ActorName
	if actor == "" {
		actor = "unknown"
	}
	fmt.Fprintf(w, "  #%-4d %-5s %-13s %s (%s)\n", e.SequenceID, e.ClockLabel, e.Kind, actor, shortName(sideName(id, e.Side)))
}

func sideName(id match.Identity, s match.Side) string {
	if n := id.Name(s); n != "" {
		return n
	}
	return s.String()
}

func setLabel(n *int) string {
	if n == nil {
		return "Set"
	}
	return fmt.Sprintf("Set %d", *n)
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func winnerLine(tag string) string {
	if tag == "" {
		return "draw"
	}
	return tag + " wins"
}

var teamSuffixes = map[string]bool{
	"FC": true, "SC": true, "CF": true, "AFC": true, "FK": true,
	"BC": true, "TC": true,
}

func shortName(name string) string {
	parts := strings.Fields(name)
	if len(parts) == 0 {
		return name
	}
	last := parts[len(parts)-1]
	if len(parts) > 1 && teamSuffixes[strings.ToUpper(last)] {
		last = parts[len(parts)-2]
	}
	return last
}
