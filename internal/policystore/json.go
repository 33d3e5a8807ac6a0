// Package policystore persists solved policy tables.
//
// The JSON format is a nested array with one row per score and one column
// per opponent score. Optimal cells are [move, winProbability] pairs, greedy
// cells are bare moves. Probabilities are decimals rounded to Precision
// digits and are read back as exact rationals.
package policystore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yourusername/hogengine/internal/policy"
)

// Precision is the number of decimal digits kept for probabilities in JSON tables.
const Precision = 5

var (
	// ErrMalformedTable is returned when persisted data does not describe a valid table.
	ErrMalformedTable = errors.New("malformed policy table")
	// ErrIncompleteTable is returned when a table is missing states.
	ErrIncompleteTable = errors.New("incomplete policy table")
)

// SaveOptimal writes a complete optimal table to w.
func SaveOptimal(w io.Writer, table *policy.OptimalTable) error {
	if !table.Complete() {
		return fmt.Errorf("%w: %d of %d states solved", ErrIncompleteTable, table.Len(), table.Goal()*table.Goal())
	}
	goal := table.Goal()
	rows := make([][][2]json.Number, goal)
	for score := 0; score < goal; score++ {
		row := make([][2]json.Number, goal)
		for opp := 0; opp < goal; opp++ {
			e, _ := table.Get(policy.State{Score: score, OpponentScore: opp})
			row[opp] = [2]json.Number{
				json.Number(strconv.Itoa(e.Move)),
				json.Number(formatProb(e.WinProb)),
			}
		}
		rows[score] = row
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		return fmt.Errorf("encode optimal table: %w", err)
	}
	return nil
}

// LoadOptimal reads an optimal table for the given goal from r.
func LoadOptimal(r io.Reader, goal int) (*policy.OptimalTable, error) {
	var rows [][]json.RawMessage
	if err := decode(r, &rows); err != nil {
		return nil, err
	}
	if len(rows) != goal {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrMalformedTable, len(rows), goal)
	}

	table := policy.NewOptimalTable(goal)
	for score, row := range rows {
		if len(row) != goal {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrMalformedTable, score, len(row), goal)
		}
		for opp, cell := range row {
			var pair []json.Number
			if err := json.Unmarshal(cell, &pair); err != nil {
				return nil, fmt.Errorf("%w: entry (%d,%d): %v", ErrMalformedTable, score, opp, err)
			}
			if len(pair) != 2 {
				return nil, fmt.Errorf("%w: entry (%d,%d) has %d values, want 2", ErrMalformedTable, score, opp, len(pair))
			}
			move, err := parseMove(pair[0])
			if err != nil {
				return nil, fmt.Errorf("entry (%d,%d): %w", score, opp, err)
			}
			prob, err := ParseProb(pair[1].String())
			if err != nil {
				return nil, fmt.Errorf("entry (%d,%d): %w", score, opp, err)
			}
			table.Put(policy.State{Score: score, OpponentScore: opp}, &policy.OptimalEntry{Move: move, WinProb: prob})
		}
	}
	return table, nil
}

// SaveGreedy writes a complete greedy table to w.
func SaveGreedy(w io.Writer, table *policy.GreedyTable) error {
	if !table.Complete() {
		return fmt.Errorf("%w: %d of %d states solved", ErrIncompleteTable, table.Len(), table.Goal()*table.Goal())
	}
	goal := table.Goal()
	rows := make([][]int, goal)
	for score := 0; score < goal; score++ {
		rows[score] = make([]int, goal)
		for opp := 0; opp < goal; opp++ {
			rows[score][opp], _ = table.Get(policy.State{Score: score, OpponentScore: opp})
		}
	}
	if err := json.NewEncoder(w).Encode(rows); err != nil {
		return fmt.Errorf("encode greedy table: %w", err)
	}
	return nil
}

// LoadGreedy reads a greedy table for the given goal from r.
func LoadGreedy(r io.Reader, goal int) (*policy.GreedyTable, error) {
	var rows [][]json.Number
	if err := decode(r, &rows); err != nil {
		return nil, err
	}
	if len(rows) != goal {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrMalformedTable, len(rows), goal)
	}

	table := policy.NewGreedyTable(goal)
	for score, row := range rows {
		if len(row) != goal {
			return nil, fmt.Errorf("%w: row %d has %d entries, want %d", ErrMalformedTable, score, len(row), goal)
		}
		for opp, v := range row {
			move, err := parseMove(v)
			if err != nil {
				return nil, fmt.Errorf("entry (%d,%d): %w", score, opp, err)
			}
			table.Put(policy.State{Score: score, OpponentScore: opp}, move)
		}
	}
	return table, nil
}

// SaveOptimalFile writes table to path, replacing any existing file atomically.
func SaveOptimalFile(path string, table *policy.OptimalTable) error {
	return writeFileAtomic(path, func(w io.Writer) error { return SaveOptimal(w, table) })
}

// LoadOptimalFile reads an optimal table from path.
func LoadOptimalFile(path string, goal int) (*policy.OptimalTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open optimal table: %w", err)
	}
	defer f.Close()
	return LoadOptimal(f, goal)
}

// SaveGreedyFile writes table to path, replacing any existing file atomically.
func SaveGreedyFile(path string, table *policy.GreedyTable) error {
	return writeFileAtomic(path, func(w io.Writer) error { return SaveGreedy(w, table) })
}

// LoadGreedyFile reads a greedy table from path.
func LoadGreedyFile(path string, goal int) (*policy.GreedyTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open greedy table: %w", err)
	}
	defer f.Close()
	return LoadGreedy(f, goal)
}

// ParseProb parses a decimal or rational probability exactly and checks it is in [0,1].
func ParseProb(s string) (*big.Rat, error) {
	p, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("%w: probability %q is not a number", ErrMalformedTable, s)
	}
	if p.Sign() < 0 || p.Cmp(big.NewRat(1, 1)) > 0 {
		return nil, fmt.Errorf("%w: probability %s outside [0,1]", ErrMalformedTable, s)
	}
	return p, nil
}

func parseMove(v json.Number) (int, error) {
	move, err := strconv.Atoi(v.String())
	if err != nil {
		return 0, fmt.Errorf("%w: move %q is not an integer", ErrMalformedTable, v)
	}
	if !policy.ValidMove(move) {
		return 0, fmt.Errorf("%w: move %d out of range", ErrMalformedTable, move)
	}
	return move, nil
}

// formatProb renders p rounded to Precision digits, trimming trailing zeros.
func formatProb(p *big.Rat) string {
	s := strings.TrimRight(p.FloatString(Precision), "0")
	if strings.HasSuffix(s, ".") {
		s += "0"
	}
	return s
}

func decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	return nil
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create table dir: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create temp table: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp table: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename table: %w", err)
	}
	return nil
}
