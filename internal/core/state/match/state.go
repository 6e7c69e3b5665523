package match

import (
	"fmt"
	"time"
)

// LiveScoreState is the reconciled view of the selected match.
//
// Optional fields are nil until a source reports them. They are replaced,
// never written through, so a copied state can be shared freely.
type LiveScoreState struct {
	MatchID int64        `json:"matchId"`
	Model   ScoringModel `json:"model"`

	Side1Total int `json:"side1Total"`
	Side2Total int `json:"side2Total"`

	Side1SetScore *int `json:"side1SetScore,omitempty"`
	Side2SetScore *int `json:"side2SetScore,omitempty"`
	Side1SetsWon  *int `json:"side1SetsWon,omitempty"`
	Side2SetsWon  *int `json:"side2SetsWon,omitempty"`
	CurrentSet    *int `json:"currentSet,omitempty"`

	ElapsedSeconds int  `json:"elapsedSeconds"`
	Running        bool `json:"running"`

	// Frozen is set once the match-completed push arrives.
	Frozen    bool      `json:"frozen"`
	WinnerTag string    `json:"winnerTag,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Int allocates a fresh optional value.
func Int(v int) *int { return &v }

// Pick returns v when present, otherwise the last known value.
func Pick(v, last *int) *int {
	if v != nil {
		return Int(*v)
	}
	return last
}

// PickInt is Pick for required fields.
func PickInt(v *int, last int) int {
	if v != nil {
		return *v
	}
	return last
}

// Deref returns 0 for a missing optional value.
func Deref(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Clock formats ElapsedSeconds as m:ss.
func (s LiveScoreState) Clock() string {
	sec := max(s.ElapsedSeconds, 0)
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}
