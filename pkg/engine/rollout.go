package engine

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/yourusername/hogengine/internal/rules"
)

// RolloutOptions controls win-rate simulation
type RolloutOptions struct {
	Trials  int   // Number of game pairs to simulate (default 1000)
	Workers int   // Number of parallel workers (0 = GOMAXPROCS)
	Seed    int64 // RNG seed (0 = random)
}

// RolloutResult contains the results of a win-rate simulation
type RolloutResult struct {
	WinRate       float64 // Average of the two seat win rates
	WinRateFirst  float64 // Win rate when moving first
	WinRateSecond float64 // Win rate when moving second
	StdDev        float64 // Standard deviation of per-pair results
	CI            float64 // 95% confidence interval half-width

	Trials     int
	WinsFirst  int
	WinsSecond int
}

// partialResult holds results from a single worker
type partialResult struct {
	samples    []float64 // one per game pair: (firstWin + secondWin) / 2
	winsFirst  int
	winsSecond int
	err        error
}

// DefaultRolloutOptions returns sensible defaults
func DefaultRolloutOptions() RolloutOptions {
	return RolloutOptions{
		Trials:  1000,
		Workers: 0,
		Seed:    0,
	}
}

// DieRoller returns a fair six-sided die driven by rng.
func DieRoller(rng *rand.Rand) func() int {
	return func() int { return rng.Intn(rules.Faces) + 1 }
}

// Play simulates a game to goal and returns the final scores, player 0 first.
// Player 0 moves first. Each strategy sees its own score first.
func Play(strategy0, strategy1 Strategy, goal int, roll func() int) (score0, score1 int, err error) {
	for who := 0; score0 < goal && score1 < goal; who ^= 1 {
		if who == 0 {
			score0, err = turn(strategy0, score0, score1, roll)
		} else {
			score1, err = turn(strategy1, score1, score0, roll)
		}
		if err != nil {
			return score0, score1, err
		}
	}
	return score0, score1, nil
}

func turn(strategy Strategy, score, opponentScore int, roll func() int) (int, error) {
	n := strategy(score, opponentScore)
	points, err := rules.TakeTurn(n, opponentScore, roll)
	if err != nil {
		return score, fmt.Errorf("strategy chose %d dice at (%d,%d): %w", n, score, opponentScore, err)
	}
	return rules.Update(score, points), nil
}

// Winner plays one game and returns 0 if strategy0 wins and 1 otherwise.
func Winner(strategy0, strategy1 Strategy, goal int, roll func() int) (int, error) {
	score0, score1, err := Play(strategy0, strategy1, goal, roll)
	if err != nil {
		return 0, err
	}
	if score0 > score1 {
		return 0, nil
	}
	return 1, nil
}

// WinRate estimates how often strategy beats baseline, averaged over
// moving first and moving second.
func WinRate(strategy, baseline Strategy, goal int, opts RolloutOptions) (*RolloutResult, error) {
	// Set defaults
	if opts.Trials <= 0 {
		opts.Trials = DefaultRolloutOptions().Trials
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Workers > opts.Trials {
		opts.Workers = opts.Trials
	}
	if opts.Seed == 0 {
		opts.Seed = rand.Int63()
	}

	// Distribute trials across workers
	trialsPerWorker := opts.Trials / opts.Workers
	extraTrials := opts.Trials % opts.Workers

	results := make(chan partialResult, opts.Workers)
	var wg sync.WaitGroup

	for i := 0; i < opts.Workers; i++ {
		wg.Add(1)
		workerTrials := trialsPerWorker
		if i < extraTrials {
			workerTrials++
		}
		workerSeed := opts.Seed + int64(i)*1000000

		go func(trials int, seed int64) {
			defer wg.Done()
			results <- winRateWorker(strategy, baseline, goal, trials, seed)
		}(workerTrials, workerSeed)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	return aggregateResults(results)
}

// winRateWorker plays trials game pairs with its own RNG
func winRateWorker(strategy, baseline Strategy, goal, trials int, seed int64) partialResult {
	roll := DieRoller(rand.New(rand.NewSource(seed)))
	pr := partialResult{samples: make([]float64, 0, trials)}

	for trial := 0; trial < trials; trial++ {
		first, err := Winner(strategy, baseline, goal, roll)
		if err != nil {
			pr.err = err
			return pr
		}
		second, err := Winner(baseline, strategy, goal, roll)
		if err != nil {
			pr.err = err
			return pr
		}

		sample := 0.0
		if first == 0 {
			pr.winsFirst++
			sample += 0.5
		}
		if second == 1 {
			pr.winsSecond++
			sample += 0.5
		}
		pr.samples = append(pr.samples, sample)
	}
	return pr
}

// aggregateResults combines partial results from workers
func aggregateResults(results <-chan partialResult) (*RolloutResult, error) {
	var (
		samples               []float64
		winsFirst, winsSecond int
		firstErr              error
	)
	for pr := range results {
		if pr.err != nil && firstErr == nil {
			firstErr = pr.err
		}
		samples = append(samples, pr.samples...)
		winsFirst += pr.winsFirst
		winsSecond += pr.winsSecond
	}
	if firstErr != nil {
		return nil, firstErr
	}

	n := len(samples)
	if n == 0 {
		return &RolloutResult{}, nil
	}

	result := &RolloutResult{
		WinRateFirst:  float64(winsFirst) / float64(n),
		WinRateSecond: float64(winsSecond) / float64(n),
		Trials:        n,
		WinsFirst:     winsFirst,
		WinsSecond:    winsSecond,
	}
	result.WinRate = stat.Mean(samples, nil)
	if n > 1 {
		result.StdDev = stat.StdDev(samples, nil)
		// 95% confidence interval = 1.96 * standard error
		result.CI = 1.96 * stat.StdErr(result.StdDev, float64(n))
	}
	return result, nil
}

// MaxScoringNumRolls returns the dice count from 1 to 10 with the highest
// average turn score over samples simulated turns each.
func MaxScoringNumRolls(roll func() int, samples int) (int, error) {
	if samples < 1 {
		return 0, fmt.Errorf("samples must be positive, got %d", samples)
	}
	best, bestAvg := 1, -1.0
	for n := 1; n <= rules.MaxDice; n++ {
		sum := 0
		for i := 0; i < samples; i++ {
			points, err := rules.RollDice(n, roll)
			if err != nil {
				return 0, err
			}
			sum += points
		}
		if avg := float64(sum) / float64(samples); avg > bestAvg {
			best, bestAvg = n, avg
		}
	}
	return best, nil
}
