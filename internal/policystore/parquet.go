package policystore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"

	"github.com/yourusername/hogengine/internal/policy"
)

// PolicyRow is one state of an exported policy.
// WinProb is the optimal win probability as a float; exact values live in
// the JSON and SQLite stores.
type PolicyRow struct {
	Goal          int32   `parquet:"goal"`
	Score         int32   `parquet:"score"`
	OpponentScore int32   `parquet:"opponent_score"`
	OptimalMove   int32   `parquet:"optimal_move"`
	WinProb       float64 `parquet:"win_prob"`
	GreedyMove    int32   `parquet:"greedy_move"`
}

// ExportParquet writes one row per state of the two tables to path.
// Both tables must be complete and share a goal.
func ExportParquet(path string, optimal *policy.OptimalTable, greedy *policy.GreedyTable) error {
	if optimal.Goal() != greedy.Goal() {
		return fmt.Errorf("goal mismatch: optimal %d, greedy %d", optimal.Goal(), greedy.Goal())
	}
	if !optimal.Complete() || !greedy.Complete() {
		return fmt.Errorf("%w: optimal %d, greedy %d of %d states", ErrIncompleteTable,
			optimal.Len(), greedy.Len(), optimal.Goal()*optimal.Goal())
	}

	goal := optimal.Goal()
	rows := make([]PolicyRow, 0, goal*goal)
	for score := 0; score < goal; score++ {
		for opp := 0; opp < goal; opp++ {
			s := policy.State{Score: score, OpponentScore: opp}
			e, _ := optimal.Get(s)
			g, _ := greedy.Get(s)
			rows = append(rows, PolicyRow{
				Goal:          int32(goal),
				Score:         int32(score),
				OpponentScore: int32(opp),
				OptimalMove:   int32(e.Move),
				WinProb:       e.WinProbFloat(),
				GreedyMove:    int32(g),
			})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", "hog_policy_v1"),
	); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename parquet: %w", err)
	}
	return nil
}

// ReadParquet reads back the rows written by ExportParquet.
func ReadParquet(path string) ([]PolicyRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := parquet.NewGenericReader[PolicyRow](f)
	defer reader.Close()

	out := make([]PolicyRow, 0, reader.NumRows())
	buf := make([]PolicyRow, 256)
	for {
		n, err := reader.Read(buf)
		out = append(out, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read parquet: %w", err)
		}
	}
	return out, nil
}
