// Package api provides the HTTP/JSON policy query API for the Hog engine.
package api

import (
	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/pkg/engine"
)

// ============================================================================
// Request Types
// ============================================================================

// MoveRequest is the request body for a move query.
type MoveRequest struct {
	Score         int    `json:"score"`                 // Current player's score
	OpponentScore int    `json:"opponent_score"`        // Opponent's score
	Policy        string `json:"policy,omitempty"`      // "optimal" (default), "greedy" or "hybrid"
	LossSwitch    *int   `json:"loss_switch,omitempty"` // Hybrid only (default 10)
	EndSwitch     *int   `json:"end_switch,omitempty"`  // Hybrid only (default 16)
}

// DistributionRequest is the WebSocket payload for a distribution query.
type DistributionRequest struct {
	Dice int `json:"dice"` // Number of dice, 1-10
}

// ============================================================================
// Response Types
// ============================================================================

// MoveResponse is the answer to a move query.
type MoveResponse struct {
	Score         int     `json:"score"`
	OpponentScore int     `json:"opponent_score"`
	Policy        string  `json:"policy"`
	Move          int     `json:"move"`                      // Dice to roll, 0 = take the tail points
	WinProb       string  `json:"win_prob,omitempty"`        // Exact fraction, optimal moves only
	WinProbApprox float64 `json:"win_prob_approx,omitempty"` // Same value as a float
	UsedOptimal   bool    `json:"used_optimal"`              // Hybrid routed to the optimal solver
}

// OutcomeResponse is one entry of a distribution.
type OutcomeResponse struct {
	Value      int     `json:"value"`
	Prob       string  `json:"prob"`        // Exact fraction
	ProbApprox float64 `json:"prob_approx"` // Same value as a float
}

// DistributionResponse describes the turn score distribution for n dice.
type DistributionResponse struct {
	Dice      int               `json:"dice"`
	Exact     bool              `json:"exact"`
	Outcomes  []OutcomeResponse `json:"outcomes"`
	Discarded string            `json:"discarded"` // Mass lost to pruning
	Mean      float64           `json:"mean"`
	StdDev    float64           `json:"std_dev"`
}

// SolveProgress is the payload of an SSE "progress" event.
type SolveProgress struct {
	Done    int     `json:"done"`
	Total   int     `json:"total"`
	Percent float64 `json:"percent"`
}

// SolveResult is the payload of the final SSE "result" event.
type SolveResult struct {
	Goal          int     `json:"goal"`
	States        int     `json:"states"`
	Computed      uint64  `json:"computed"`
	HitRate       float64 `json:"hit_rate"`
	OpeningMove   int     `json:"opening_move"`
	OpeningWinPct float64 `json:"opening_win_pct"`
	ElapsedMs     int64   `json:"elapsed_ms"`
}

// HealthResponse is the response for health checks.
type HealthResponse struct {
	Status  string             `json:"status"`
	Version string             `json:"version"`
	Ready   bool               `json:"ready"`
	Goal    int                `json:"goal,omitempty"`
	Exact   bool               `json:"exact,omitempty"`
	Optimal *engine.CacheStats `json:"optimal,omitempty"`
	Pool    *PoolStats         `json:"pool,omitempty"`
}

// ErrorResponse is returned when an error occurs.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// DistributionToResponse converts a dice distribution for the wire.
func DistributionToResponse(d *dice.Distribution, exact bool) DistributionResponse {
	outcomes := make([]OutcomeResponse, len(d.Outcomes))
	for i, o := range d.Outcomes {
		approx, _ := o.Prob.Float64()
		outcomes[i] = OutcomeResponse{Value: o.Value, Prob: o.Prob.RatString(), ProbApprox: approx}
	}
	mean, stddev := d.Summary()
	return DistributionResponse{
		Dice:      d.Dice,
		Exact:     exact,
		Outcomes:  outcomes,
		Discarded: d.Discarded().RatString(),
		Mean:      mean,
		StdDev:    stddev,
	}
}
