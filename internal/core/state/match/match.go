// Package match holds the operator-side view of a live match: who is
// playing, how the sport is scored, and the reconciled score.
package match

import (
	"fmt"
	"time"
)

// Side identifies one of the two competitors. The backend numbers them 1 and 2.
type Side int

const (
	SideNone Side = 0
	Side1    Side = 1
	Side2    Side = 2
)

func (s Side) Valid() bool { return s == Side1 || s == Side2 }

func (s Side) String() string {
	switch s {
	case Side1:
		return "side1"
	case Side2:
		return "side2"
	default:
		return "none"
	}
}

// ParseSide accepts the backend's 1/2 numbering as well as home/away.
func ParseSide(v string) (Side, error) {
	switch v {
	case "1", "home", "side1", "team1":
		return Side1, nil
	case "2", "away", "side2", "team2":
		return Side2, nil
	default:
		return SideNone, fmt.Errorf("unknown side %q", v)
	}
}

// Identity is the read-only reference data of a started match.
type Identity struct {
	ID        int64  `json:"id"`
	Side1ID   int64  `json:"side1Id"`
	Side2ID   int64  `json:"side2Id"`
	Side1Name string `json:"side1Name"`
	Side2Name string `json:"side2Name"`
	SportName string `json:"sportName"`
}

// Name returns the display name of a side, or "" for SideNone.
func (id Identity) Name(s Side) string {
	switch s {
	case Side1:
		return id.Side1Name
	case Side2:
		return id.Side2Name
	default:
		return ""
	}
}

type Player struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
}

// Roster lists the match-specific players per side.
type Roster struct {
	Side1 []Player `json:"side1"`
	Side2 []Player `json:"side2"`
}

func (r Roster) Players(s Side) []Player {
	switch s {
	case Side1:
		return r.Side1
	case Side2:
		return r.Side2
	default:
		return nil
	}
}

func (r Roster) Empty() bool { return len(r.Side1) == 0 && len(r.Side2) == 0 }

// Find returns the player with id on side s.
func (r Roster) Find(s Side, id int64) (Player, bool) {
	for _, p := range r.Players(s) {
		if p.ID == id {
			return p, true
		}
	}
	return Player{}, false
}

// Summary is one row of the live match list.
type Summary struct {
	ID             int64     `json:"matchId"`
	SportName      string    `json:"sportType"`
	Side1Name      string    `json:"teamAName"`
	Side2Name      string    `json:"teamBName"`
	Side1Score     int       `json:"scoreA"`
	Side2Score     int       `json:"scoreB"`
	Status         string    `json:"status"`
	Venue          string    `json:"venueName,omitempty"`
	StartTime      time.Time `json:"startTime,omitempty"`
	ElapsedSeconds int       `json:"elapsedSeconds"`
	Running        bool      `json:"running"`
}
