package match

import "strings"

// ScoringModel is the shape of score data for a sport.
type ScoringModel int

const (
	ModelUnknown ScoringModel = iota
	// ModelContinuous keeps one running total per side (e.g. football).
	ModelContinuous
	// ModelSetBased tracks current-set points, sets won and a set index (racket sports).
	ModelSetBased
)

func (m ScoringModel) String() string {
	switch m {
	case ModelContinuous:
		return "continuous"
	case ModelSetBased:
		return "set_based"
	default:
		return "unknown"
	}
}

func (m ScoringModel) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// DefaultSetBasedSports are scored per set when no table overrides them.
var DefaultSetBasedSports = []string{"Tennis", "Badminton", "Pickleball"}

// Classifier maps a sport name to its scoring model using a static table.
type Classifier struct {
	models map[string]ScoringModel
}

func NewClassifier(setBased, continuous []string) *Classifier {
	c := &Classifier{models: make(map[string]ScoringModel, len(setBased)+len(continuous))}
	for _, s := range continuous {
		c.models[normalizeSport(s)] = ModelContinuous
	}
	for _, s := range setBased {
		c.models[normalizeSport(s)] = ModelSetBased
	}
	return c
}

// DefaultClassifier recognises DefaultSetBasedSports only.
func DefaultClassifier() *Classifier {
	return NewClassifier(DefaultSetBasedSports, nil)
}

// Classify never returns ModelUnknown: unrecognised sports score continuously.
func (c *Classifier) Classify(sport string) ScoringModel {
	if m, ok := c.models[normalizeSport(sport)]; ok {
		return m
	}
	return ModelContinuous
}

func normalizeSport(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
