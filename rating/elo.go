package rating

import "math"

const (
	defaultKFactor   = 32
	defaultMinRating = 100
	scaleFactor      = 400.0
)

// Outcome values from the first player's point of view.
const (
	Loss = 0.0
	Draw = 0.5
	Win  = 1.0
)

// Config holds system parameters
type Config struct {
	KFactor   int `json:"k_factor"`
	MinRating int `json:"min_rating"`
}

// DefaultConfig returns recommended default parameters
func DefaultConfig() *Config {
	return &Config{
		KFactor:   defaultKFactor,
		MinRating: defaultMinRating,
	}
}

// Elo implements the classic Elo rating system on integer ratings.
type Elo struct {
	Config *Config
}

// New creates an Elo rating system with configuration
func New(config *Config) *Elo {
	if config == nil {
		config = DefaultConfig()
	}
	return &Elo{Config: config}
}

// Expected returns the expected score of a player rated a against one rated b.
func Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/scaleFactor))
}

// Deltas returns the rating changes for p1 and p2.
// outcome: 1 = p1 wins, 0 = p2 wins, 0.5 = draw
func (e *Elo) Deltas(r1, r2 int, outcome float64) (int, int) {
	outcome = math.Max(0, math.Min(1, outcome))
	k := float64(e.Config.KFactor)

	d1 := int(math.Round(k * (outcome - Expected(r1, r2))))
	d2 := int(math.Round(k * ((1 - outcome) - Expected(r2, r1))))

	// Never push a rating below the floor.
	if r1+d1 < e.Config.MinRating {
		d1 = e.Config.MinRating - r1
	}
	if r2+d2 < e.Config.MinRating {
		d2 = e.Config.MinRating - r2
	}
	return d1, d2
}

// UpdateMatch returns the new ratings after a match between two players.
func (e *Elo) UpdateMatch(r1, r2 int, outcome float64) (int, int) {
	d1, d2 := e.Deltas(r1, r2, outcome)
	return r1 + d1, r2 + d2
}
