package policystore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/yourusername/hogengine/internal/policy"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps policy tables in a SQLite database. Several goals can
// share one database. Win probabilities are stored exactly as rational
// strings, with a REAL copy for ad-hoc queries.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// Open opens (creating if needed) a SQLite policy store at path.
func Open(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SaveOptimal replaces the stored optimal table for table's goal.
func (s *SQLiteStore) SaveOptimal(ctx context.Context, table *policy.OptimalTable) error {
	if !table.Complete() {
		return fmt.Errorf("%w: %d of %d states solved", ErrIncompleteTable, table.Len(), table.Goal()*table.Goal())
	}
	goal := table.Goal()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM optimal_policy WHERE goal = ?`, goal); err != nil {
			return fmt.Errorf("clear optimal policy: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO optimal_policy (goal, score, opponent_score, move, win_prob, win_prob_approx)
			 VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare optimal insert: %w", err)
		}
		defer stmt.Close()

		for score := 0; score < goal; score++ {
			for opp := 0; opp < goal; opp++ {
				e, _ := table.Get(policy.State{Score: score, OpponentScore: opp})
				if _, err := stmt.ExecContext(ctx, goal, score, opp, e.Move, e.WinProb.RatString(), e.WinProbFloat()); err != nil {
					return fmt.Errorf("insert optimal (%d,%d): %w", score, opp, err)
				}
			}
		}
		return nil
	})
}

// LoadOptimal reads the optimal table stored for goal.
func (s *SQLiteStore) LoadOptimal(ctx context.Context, goal int) (*policy.OptimalTable, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT score, opponent_score, move, win_prob FROM optimal_policy WHERE goal = ?`, goal)
	if err != nil {
		return nil, fmt.Errorf("query optimal policy: %w", err)
	}
	defer rows.Close()

	table := policy.NewOptimalTable(goal)
	for rows.Next() {
		var (
			state policy.State
			move  int
			prob  string
		)
		if err := rows.Scan(&state.Score, &state.OpponentScore, &move, &prob); err != nil {
			return nil, fmt.Errorf("scan optimal row: %w", err)
		}
		if err := checkRow(state, move, goal); err != nil {
			return nil, err
		}
		p, err := ParseProb(prob)
		if err != nil {
			return nil, fmt.Errorf("state %s: %w", state, err)
		}
		table.Put(state, &policy.OptimalEntry{Move: move, WinProb: p})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate optimal rows: %w", err)
	}
	if !table.Complete() {
		return nil, fmt.Errorf("%w: %d of %d states stored for goal %d", ErrIncompleteTable, table.Len(), goal*goal, goal)
	}
	return table, nil
}

// SaveGreedy replaces the stored greedy table for table's goal.
func (s *SQLiteStore) SaveGreedy(ctx context.Context, table *policy.GreedyTable) error {
	if !table.Complete() {
		return fmt.Errorf("%w: %d of %d states solved", ErrIncompleteTable, table.Len(), table.Goal()*table.Goal())
	}
	goal := table.Goal()
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM greedy_policy WHERE goal = ?`, goal); err != nil {
			return fmt.Errorf("clear greedy policy: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO greedy_policy (goal, score, opponent_score, move) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("prepare greedy insert: %w", err)
		}
		defer stmt.Close()

		for score := 0; score < goal; score++ {
			for opp := 0; opp < goal; opp++ {
				move, _ := table.Get(policy.State{Score: score, OpponentScore: opp})
				if _, err := stmt.ExecContext(ctx, goal, score, opp, move); err != nil {
					return fmt.Errorf("insert greedy (%d,%d): %w", score, opp, err)
				}
			}
		}
		return nil
	})
}

// LoadGreedy reads the greedy table stored for goal.
func (s *SQLiteStore) LoadGreedy(ctx context.Context, goal int) (*policy.GreedyTable, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT score, opponent_score, move FROM greedy_policy WHERE goal = ?`, goal)
	if err != nil {
		return nil, fmt.Errorf("query greedy policy: %w", err)
	}
	defer rows.Close()

	table := policy.NewGreedyTable(goal)
	for rows.Next() {
		var (
			state policy.State
			move  int
		)
		if err := rows.Scan(&state.Score, &state.OpponentScore, &move); err != nil {
			return nil, fmt.Errorf("scan greedy row: %w", err)
		}
		if err := checkRow(state, move, goal); err != nil {
			return nil, err
		}
		table.Put(state, move)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate greedy rows: %w", err)
	}
	if !table.Complete() {
		return nil, fmt.Errorf("%w: %d of %d states stored for goal %d", ErrIncompleteTable, table.Len(), goal*goal, goal)
	}
	return table, nil
}

func (s *SQLiteStore) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func checkRow(state policy.State, move, goal int) error {
	if err := state.Validate(goal); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedTable, err)
	}
	if !policy.ValidMove(move) {
		return fmt.Errorf("%w: state %s has move %d", ErrMalformedTable, state, move)
	}
	return nil
}
