// Package bandit selects which prompt version a call uses, treating each
// active version as one arm of a Beta-Bernoulli multi-armed bandit.
//
// Selection is Thompson sampling: draw θᵢ ~ Beta(αᵢ, βᵢ) for every candidate
// and pick the argmax. Winner detection and elimination operate on the same
// α/β counts; maintaining and persisting those counts is the store's concern.
package bandit

import (
	"errors"
	"math"
	"math/rand/v2"
	"sort"
)

// Default experiment thresholds.
const (
	DefaultMinSamples             = 30
	DefaultDraws                  = 10000
	DefaultWinnerProbability      = 0.95
	DefaultEliminationProbability = 0.99
)

// ErrNoArms is returned when selection runs with no active candidates.
var ErrNoArms = errors.New("bandit: no active arms")

// Arm is one candidate prompt version.
type Arm struct {
	ID    string
	Alpha float64
	Beta  float64

	// Samples is how many terminal outcomes the arm has accumulated.
	Samples int
}

// Config tunes the experiment. Zero fields take the package defaults.
type Config struct {
	// MinSamples is the per-arm sample floor before winner detection runs.
	MinSamples int

	// Draws is the Monte-Carlo sample count for probability estimates.
	Draws int

	// WinnerProbability is the P(best) level that declares a winner.
	WinnerProbability float64

	// EliminationProbability is the P(arm < best) level that retires an arm.
	EliminationProbability float64
}

func (c *Config) applyDefaults() {
	if c.MinSamples <= 0 {
		c.MinSamples = DefaultMinSamples
	}
	if c.Draws <= 0 {
		c.Draws = DefaultDraws
	}
	if c.WinnerProbability <= 0 {
		c.WinnerProbability = DefaultWinnerProbability
	}
	if c.EliminationProbability <= 0 {
		c.EliminationProbability = DefaultEliminationProbability
	}
}

// Selector draws from arms. Not safe for concurrent use; callers serialize
// (the dispatcher and webhook router share one behind the app's mutex).
type Selector struct {
	cfg Config
	rng *rand.Rand
}

// New creates a selector with a random seed.
func New(cfg Config) *Selector {
	return NewSeeded(cfg, rand.Uint64(), rand.Uint64())
}

// NewSeeded creates a deterministic selector for tests.
func NewSeeded(cfg Config, seed1, seed2 uint64) *Selector {
	cfg.applyDefaults()
	return &Selector{cfg: cfg, rng: rand.New(rand.NewPCG(seed1, seed2))}
}

// Select picks the arm whose Beta draw is highest.
func (s *Selector) Select(arms []Arm) (Arm, error) {
	if len(arms) == 0 {
		return Arm{}, ErrNoArms
	}
	best := 0
	bestDraw := math.Inf(-1)
	for i, a := range arms {
		draw := s.sampleBeta(a.Alpha, a.Beta)
		if draw > bestDraw {
			bestDraw = draw
			best = i
		}
	}
	return arms[best], nil
}

// BestProbabilities estimates P(arm i is best) for every arm by Monte-Carlo.
func (s *Selector) BestProbabilities(arms []Arm) []float64 {
	wins := make([]int, len(arms))
	draws := make([]float64, len(arms))
	for n := 0; n < s.cfg.Draws; n++ {
		best := 0
		for i, a := range arms {
			draws[i] = s.sampleBeta(a.Alpha, a.Beta)
			if draws[i] > draws[best] {
				best = i
			}
		}
		wins[best]++
	}
	probs := make([]float64, len(arms))
	for i, w := range wins {
		probs[i] = float64(w) / float64(s.cfg.Draws)
	}
	return probs
}

// Winner returns the arm id whose P(best) clears the winner threshold, once
// every arm has the minimum sample count. ok is false while the experiment
// is still undecided.
func (s *Selector) Winner(arms []Arm) (string, bool) {
	if len(arms) < 2 {
		return "", false
	}
	for _, a := range arms {
		if a.Samples < s.cfg.MinSamples {
			return "", false
		}
	}
	probs := s.BestProbabilities(arms)
	for i, p := range probs {
		if p >= s.cfg.WinnerProbability {
			return arms[i].ID, true
		}
	}
	return "", false
}

// Eliminable returns the ids of arms that are almost surely worse than the
// current leader: P(θ_arm < θ_leader) at or above the elimination threshold.
// Elimination is terminal for an arm.
func (s *Selector) Eliminable(arms []Arm) []string {
	if len(arms) < 2 {
		return nil
	}
	leader := 0
	for i, a := range arms {
		mean := a.Alpha / (a.Alpha + a.Beta)
		if mean > arms[leader].Alpha/(arms[leader].Alpha+arms[leader].Beta) {
			leader = i
		}
	}

	var out []string
	for i, a := range arms {
		if i == leader {
			continue
		}
		behind := 0
		for n := 0; n < s.cfg.Draws; n++ {
			if s.sampleBeta(a.Alpha, a.Beta) < s.sampleBeta(arms[leader].Alpha, arms[leader].Beta) {
				behind++
			}
		}
		if float64(behind)/float64(s.cfg.Draws) >= s.cfg.EliminationProbability {
			out = append(out, a.ID)
		}
	}
	return out
}

// CredibleInterval estimates the central 95% interval of Beta(α, β) by
// Monte-Carlo. Reporting only; selection never consults it.
func (s *Selector) CredibleInterval(alpha, beta float64) (lo, hi float64) {
	samples := make([]float64, s.cfg.Draws)
	for i := range samples {
		samples[i] = s.sampleBeta(alpha, beta)
	}
	sort.Float64s(samples)
	lo = samples[int(0.025*float64(len(samples)))]
	hi = samples[int(0.975*float64(len(samples)))-1]
	return lo, hi
}

// sampleBeta draws from Beta(a, b) via two Gamma draws.
func (s *Selector) sampleBeta(a, b float64) float64 {
	if a <= 0 {
		a = 1
	}
	if b <= 0 {
		b = 1
	}
	x := s.sampleGamma(a)
	y := s.sampleGamma(b)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) with the Marsaglia-Tsang squeeze
// method. Shapes below 1 use the boost Gamma(a) = Gamma(a+1)·U^(1/a).
func (s *Selector) sampleGamma(shape float64) float64 {
	if shape < 1 {
		u := s.rng.Float64()
		return s.sampleGamma(shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = s.rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := s.rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
