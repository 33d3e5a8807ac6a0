// Package dice computes exact outcome distributions for a Hog turn.
// Rolling n dice scores their sum unless any die shows 1, in which case
// the turn scores exactly 1 (the bust rule).
package dice

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/hogengine/internal/rules"
)

// ErrInvalidDiceCount is returned when a distribution is requested for
// fewer than one or more than rules.MaxDice dice.
var ErrInvalidDiceCount = errors.New("invalid dice count")

// BustValue is the score of any roll that contains a 1.
const BustValue = 1

// Outcome is one possible turn score and its exact probability.
type Outcome struct {
	Value int
	Prob  *big.Rat
}

// Distribution is the outcome distribution for rolling a fixed number of dice.
// Outcomes are sorted by Value. Without pruning the probabilities sum to 1.
// Distributions are shared through the Calculator cache and must not be mutated.
type Distribution struct {
	Dice     int
	Outcomes []Outcome
}

// Len returns the number of distinct outcomes.
func (d *Distribution) Len() int {
	return len(d.Outcomes)
}

// Total returns the exact probability mass held by the distribution.
func (d *Distribution) Total() *big.Rat {
	total := new(big.Rat)
	for _, o := range d.Outcomes {
		total.Add(total, o.Prob)
	}
	return total
}

// Discarded returns the probability mass lost to pruning.
func (d *Distribution) Discarded() *big.Rat {
	return new(big.Rat).Sub(big.NewRat(1, 1), d.Total())
}

// Prob returns the probability of scoring exactly value, or zero.
func (d *Distribution) Prob(value int) *big.Rat {
	i := sort.Search(len(d.Outcomes), func(i int) bool { return d.Outcomes[i].Value >= value })
	if i < len(d.Outcomes) && d.Outcomes[i].Value == value {
		return new(big.Rat).Set(d.Outcomes[i].Prob)
	}
	return new(big.Rat)
}

// Mean returns the exact expected turn score, sum(value * prob).
// Pruned mass contributes nothing.
func (d *Distribution) Mean() *big.Rat {
	mean := new(big.Rat)
	term := new(big.Rat)
	for _, o := range d.Outcomes {
		term.SetInt64(int64(o.Value))
		term.Mul(term, o.Prob)
		mean.Add(mean, term)
	}
	return mean
}

// Summary returns the mean and standard deviation of the turn score as floats.
// It is meant for reports; solvers use the exact values.
func (d *Distribution) Summary() (mean, stddev float64) {
	if len(d.Outcomes) == 0 {
		return 0, 0
	}
	values := make([]float64, len(d.Outcomes))
	weights := make([]float64, len(d.Outcomes))
	for i, o := range d.Outcomes {
		values[i] = float64(o.Value)
		weights[i], _ = o.Prob.Float64()
	}
	// Probabilities are the weights, so the population form is the right one.
	return stat.PopMeanStdDev(values, weights)
}

// Calculator builds and caches distributions for 1..rules.MaxDice dice.
// It is safe for concurrent use.
type Calculator struct {
	cutoff *big.Rat // entries below cutoff are dropped; nil means exact

	mu    sync.Mutex
	cache map[int]*Distribution
}

// NewCalculator creates a calculator that drops outcomes whose probability
// is below cutoff. A nil or zero cutoff keeps every outcome, so results are
// exact. A positive cutoff discards mass; it is never redistributed, so each
// kept outcome probability is a lower bound of the exact one.
func NewCalculator(cutoff *big.Rat) *Calculator {
	c := &Calculator{cache: make(map[int]*Distribution)}
	if cutoff != nil && cutoff.Sign() > 0 {
		c.cutoff = new(big.Rat).Set(cutoff)
	}
	return c
}

// Exact reports whether the calculator keeps every outcome.
func (c *Calculator) Exact() bool {
	return c.cutoff == nil
}

// Cutoff returns a copy of the pruning threshold (zero when exact).
func (c *Calculator) Cutoff() *big.Rat {
	if c.cutoff == nil {
		return new(big.Rat)
	}
	return new(big.Rat).Set(c.cutoff)
}

// Compute returns the distribution for rolling n dice.
func (c *Calculator) Compute(n int) (*Distribution, error) {
	if n < 1 || n > rules.MaxDice {
		return nil, fmt.Errorf("%w: need 1-%d dice, got %d", ErrInvalidDiceCount, rules.MaxDice, n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.compute(n), nil
}

// compute builds the distribution for n dice from the one for n-1.
// Caller must hold c.mu.
func (c *Calculator) compute(n int) *Distribution {
	if d, ok := c.cache[n]; ok {
		return d
	}

	var d *Distribution
	if n == 1 {
		d = singleDie()
	} else {
		d = extend(c.compute(n - 1))
	}
	c.prune(d)
	c.cache[n] = d
	return d
}

// singleDie returns the six faces of one die, each 1/6.
func singleDie() *Distribution {
	d := &Distribution{Dice: 1, Outcomes: make([]Outcome, 0, rules.Faces)}
	for face := 1; face <= rules.Faces; face++ {
		d.Outcomes = append(d.Outcomes, Outcome{Value: face, Prob: big.NewRat(1, rules.Faces)})
	}
	return d
}

// extend adds one die to prev. A bust in prev stays a bust and rolling a 1
// busts, so bust is absorbing and the outcome set grows linearly per die.
func extend(prev *Distribution) *Distribution {
	sixth := big.NewRat(1, rules.Faces)
	acc := make(map[int]*big.Rat, len(prev.Outcomes)+rules.Faces)
	for _, o := range prev.Outcomes {
		share := new(big.Rat).Mul(o.Prob, sixth)
		for face := 1; face <= rules.Faces; face++ {
			value := o.Value + face
			if o.Value == BustValue || face == 1 {
				value = BustValue
			}
			if p, ok := acc[value]; ok {
				p.Add(p, share)
			} else {
				acc[value] = new(big.Rat).Set(share)
			}
		}
	}

	d := &Distribution{Dice: prev.Dice + 1, Outcomes: make([]Outcome, 0, len(acc))}
	for value, p := range acc {
		d.Outcomes = append(d.Outcomes, Outcome{Value: value, Prob: p})
	}
	sort.Slice(d.Outcomes, func(i, j int) bool { return d.Outcomes[i].Value < d.Outcomes[j].Value })
	return d
}

// prune drops outcomes below the cutoff in place.
func (c *Calculator) prune(d *Distribution) {
	if c.cutoff == nil {
		return
	}
	kept := d.Outcomes[:0]
	for _, o := range d.Outcomes {
		if o.Prob.Cmp(c.cutoff) >= 0 {
			kept = append(kept, o)
		}
	}
	d.Outcomes = kept
}
