package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/yourusername/hogengine/internal/rules"
)

// fixedDice returns a roll function that cycles through values.
func fixedDice(values ...int) func() int {
	i := 0
	return func() int {
		v := values[i%len(values)]
		i++
		return v
	}
}

func TestRolloutDefaultOptions(t *testing.T) {
	opts := DefaultRolloutOptions()
	if opts.Trials != 1000 {
		t.Errorf("Default Trials = %d, want 1000", opts.Trials)
	}
	if opts.Workers != 0 {
		t.Errorf("Default Workers = %d, want 0", opts.Workers)
	}
}

func TestPlayTailOnly(t *testing.T) {
	// P0: tail(0)=1, 1 is square -> 4. P1: tail(4)=9, 9 is square -> 16.
	score0, score1, err := Play(AlwaysRoll(0), AlwaysRoll(0), 10, fixedDice(6))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if score0 != 4 || score1 != 16 {
		t.Errorf("Play = (%d, %d), want (4, 16)", score0, score1)
	}
}

func TestPlayStopsAtGoal(t *testing.T) {
	score0, score1, err := Play(AlwaysRoll(5), AlwaysRoll(5), rules.Goal, fixedDice(2, 3, 4, 5, 6))
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if score0 < rules.Goal && score1 < rules.Goal {
		t.Errorf("Play ended at (%d, %d) with nobody at goal", score0, score1)
	}
	if score0 >= rules.Goal && score1 >= rules.Goal {
		t.Errorf("Play continued after a win: (%d, %d)", score0, score1)
	}
}

func TestPlayInvalidStrategy(t *testing.T) {
	bad := func(int, int) int { return rules.MaxDice + 1 }
	_, _, err := Play(bad, AlwaysRoll(1), rules.Goal, fixedDice(6))
	if !errors.Is(err, rules.ErrInvalidRollCount) {
		t.Errorf("Play with bad strategy: err = %v, want ErrInvalidRollCount", err)
	}
}

func TestWinner(t *testing.T) {
	w, err := Winner(AlwaysRoll(0), AlwaysRoll(0), 10, fixedDice(6))
	if err != nil {
		t.Fatalf("Winner failed: %v", err)
	}
	if w != 1 {
		t.Errorf("Winner = %d, want 1", w)
	}
}

func TestWinRateSelfPlay(t *testing.T) {
	opts := RolloutOptions{
		Trials:  2000,
		Seed:    12345,
		Workers: 4,
	}

	start := time.Now()
	result, err := WinRate(AlwaysRoll(5), AlwaysRoll(5), rules.Goal, opts)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("WinRate failed: %v", err)
	}

	t.Logf("WinRate completed in %v", elapsed)
	t.Logf("Trials: %d, WinRate: %.4f ± %.4f (first %.4f, second %.4f)",
		result.Trials, result.WinRate, result.CI, result.WinRateFirst, result.WinRateSecond)

	if result.Trials != opts.Trials {
		t.Errorf("Trials = %d, want %d", result.Trials, opts.Trials)
	}

	// Seats are averaged, so self-play is fair
	if math.Abs(result.WinRate-0.5) > 0.05 {
		t.Errorf("WinRate = %.4f, expected near 0.5", result.WinRate)
	}
	if result.StdDev <= 0 || result.CI <= 0 {
		t.Errorf("StdDev = %.4f, CI = %.4f, want positive", result.StdDev, result.CI)
	}

	// First mover has the edge
	if result.WinRateFirst < result.WinRateSecond-0.1 {
		t.Errorf("WinRateFirst = %.4f much lower than WinRateSecond = %.4f",
			result.WinRateFirst, result.WinRateSecond)
	}
}

func TestWinRateDeterministic(t *testing.T) {
	opts := RolloutOptions{
		Trials:  200,
		Seed:    42,
		Workers: 3,
	}

	r1, err := WinRate(CatchUp, AlwaysRoll(6), rules.Goal, opts)
	if err != nil {
		t.Fatalf("First WinRate failed: %v", err)
	}
	r2, err := WinRate(CatchUp, AlwaysRoll(6), rules.Goal, opts)
	if err != nil {
		t.Fatalf("Second WinRate failed: %v", err)
	}

	if r1.WinRate != r2.WinRate || r1.WinsFirst != r2.WinsFirst || r1.WinsSecond != r2.WinsSecond {
		t.Errorf("Same seed gave different results: %+v vs %+v", r1, r2)
	}
}

func TestWinRateMoreWorkersThanTrials(t *testing.T) {
	result, err := WinRate(AlwaysRoll(4), AlwaysRoll(6), rules.Goal, RolloutOptions{Trials: 3, Workers: 16, Seed: 7})
	if err != nil {
		t.Fatalf("WinRate failed: %v", err)
	}
	if result.Trials != 3 {
		t.Errorf("Trials = %d, want 3", result.Trials)
	}
}

func TestWinRateStrategyError(t *testing.T) {
	bad := func(int, int) int { return -1 }
	_, err := WinRate(bad, AlwaysRoll(6), rules.Goal, RolloutOptions{Trials: 10, Workers: 2, Seed: 1})
	if !errors.Is(err, rules.ErrInvalidRollCount) {
		t.Errorf("err = %v, want ErrInvalidRollCount", err)
	}
}

func TestMaxScoringNumRolls(t *testing.T) {
	// Any two consecutive rolls include a 1, so only one die avoids busting.
	got, err := MaxScoringNumRolls(fixedDice(1, 6), 1000)
	if err != nil {
		t.Fatalf("MaxScoringNumRolls failed: %v", err)
	}
	if got != 1 {
		t.Errorf("MaxScoringNumRolls = %d, want 1", got)
	}

	if _, err := MaxScoringNumRolls(fixedDice(6), 0); err == nil {
		t.Error("MaxScoringNumRolls with zero samples should fail")
	}
}

func BenchmarkWinRate(b *testing.B) {
	opts := RolloutOptions{Trials: 100, Seed: 1}
	for i := 0; i < b.N; i++ {
		_, _ = WinRate(AlwaysRoll(6), CatchUp, rules.Goal, opts)
	}
}
