package completion

import (
	"fmt"
	"sync"
)

// OnceGuard remembers which terminal notifications have already fired.
type OnceGuard struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewOnceGuard() *OnceGuard {
	return &OnceGuard{seen: make(map[string]bool)}
}

// Key prefers the backend sequence id, scoped to the match since the backend
// may number events per match. Without one, a set is identified by match and
// set number and a match result by the match alone.
func Key(kind Kind, matchID, sequenceID int64, setNumber int) string {
	switch {
	case sequenceID != 0:
		return fmt.Sprintf("%s:%d:seq:%d", kind, matchID, sequenceID)
	case kind == KindSetComplete:
		return fmt.Sprintf("set:%d:%d", matchID, setNumber)
	default:
		return fmt.Sprintf("match:%d", matchID)
	}
}

// First records key and reports whether it was new.
func (g *OnceGuard) First(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.seen[key] {
		return false
	}
	g.seen[key] = true
	return true
}
