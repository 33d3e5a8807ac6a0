package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/dice"
	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/pkg/engine"
)

// errInvalidSwitch is returned for a negative hybrid threshold.
var errInvalidSwitch = errors.New("hybrid switches must not be negative")

// Handlers holds the HTTP handlers and engine reference.
type Handlers struct {
	engine  *engine.Engine
	version string
	pool    *WorkerPool
	logger  *zap.Logger
}

// NewHandlers creates the handlers. A nil pool leaves requests
// unbounded; a nil logger discards logs.
func NewHandlers(e *engine.Engine, version string, pool *WorkerPool, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		engine:  e,
		version: version,
		pool:    pool,
		logger:  logger,
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, msg string, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: msg,
		Code:  code,
	})
}

// classifyError maps a domain error to an HTTP status and error code.
// Anything unrecognized is an internal failure.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, policy.ErrStateOutOfRange):
		return http.StatusBadRequest, "STATE_OUT_OF_RANGE"
	case errors.Is(err, dice.ErrInvalidDiceCount):
		return http.StatusBadRequest, "INVALID_DICE"
	case errors.Is(err, engine.ErrUnknownPolicy):
		return http.StatusBadRequest, "UNKNOWN_POLICY"
	case errors.Is(err, errInvalidSwitch):
		return http.StatusBadRequest, "INVALID_SWITCH"
	}
	return http.StatusInternalServerError, "SOLVE_ERROR"
}

// writeDomainError writes err with the status classifyError picks for it.
func (h *Handlers) writeDomainError(w http.ResponseWriter, err error) {
	status, code := classifyError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error(), code)
}

// moveQuery is a validated move request with its route decided.
type moveQuery struct {
	state      policy.State
	kind       engine.PolicyKind
	useOptimal bool
}

// parseMove validates req and decides which solver answers it.
func (h *Handlers) parseMove(req MoveRequest) (moveQuery, error) {
	kind, err := engine.ParsePolicyKind(req.Policy)
	if err != nil {
		return moveQuery{}, err
	}
	lossSwitch, endSwitch := engine.DefaultLossSwitch, engine.DefaultEndSwitch
	if req.LossSwitch != nil {
		lossSwitch = *req.LossSwitch
	}
	if req.EndSwitch != nil {
		endSwitch = *req.EndSwitch
	}
	if lossSwitch < 0 || endSwitch < 0 {
		return moveQuery{}, errInvalidSwitch
	}

	q := moveQuery{
		state:      policy.State{Score: req.Score, OpponentScore: req.OpponentScore},
		kind:       kind,
		useOptimal: kind == engine.PolicyOptimal,
	}
	if kind == engine.PolicyHybrid {
		q.useOptimal = h.engine.Hybrid(lossSwitch, endSwitch).UsesOptimal(req.Score, req.OpponentScore)
	}
	return q, nil
}

// needsSolve reports whether answering q may run the optimal solver over
// states that are not in its table yet.
func (h *Handlers) needsSolve(q moveQuery) bool {
	return q.useOptimal && !h.engine.Optimal().Table().Complete()
}

func (h *Handlers) answerMove(q moveQuery) (*MoveResponse, error) {
	resp := &MoveResponse{
		Score:         q.state.Score,
		OpponentScore: q.state.OpponentScore,
		Policy:        string(q.kind),
	}
	if q.useOptimal {
		entry, err := h.engine.Optimal().Solve(q.state)
		if err != nil {
			return nil, err
		}
		resp.Move = entry.Move
		resp.WinProb = entry.WinProb.RatString()
		resp.WinProbApprox = entry.WinProbFloat()
		resp.UsedOptimal = true
		return resp, nil
	}

	move, err := h.engine.Greedy().Solve(q.state)
	if err != nil {
		return nil, err
	}
	resp.Move = move
	return resp, nil
}

// resolveMove answers a move query. It is shared by the HTTP and WebSocket
// front ends.
func (h *Handlers) resolveMove(req MoveRequest) (*MoveResponse, error) {
	q, err := h.parseMove(req)
	if err != nil {
		return nil, err
	}
	return h.answerMove(q)
}

// Health handles GET /api/health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Ready:   h.engine != nil,
	}

	if h.engine != nil {
		stats := h.engine.Optimal().Stats()
		resp.Goal = h.engine.Goal()
		resp.Exact = h.engine.Exact()
		resp.Optimal = &stats
	}

	// Include pool stats if available
	if h.pool != nil {
		stats := h.pool.Stats()
		resp.Pool = &stats
	}

	writeJSON(w, http.StatusOK, resp)
}

// Move handles POST /api/move
//
// Lookups in a solved table take a fast slot. A query that may trigger
// optimal solving on a cold table takes a slow slot instead.
func (h *Handlers) Move(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON", "INVALID_JSON")
		return
	}
	q, err := h.parseMove(req)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	if h.pool != nil {
		acquire, release := h.pool.AcquireFast, h.pool.ReleaseFast
		if h.needsSolve(q) {
			acquire, release = h.pool.AcquireSlow, h.pool.ReleaseSlow
		}
		if err := acquire(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "server busy", "SERVER_BUSY")
			return
		}
		defer release()
	}

	resp, err := h.answerMove(q)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Distribution handles GET /api/distribution?dice=n
func (h *Handlers) Distribution(w http.ResponseWriter, r *http.Request) {
	if h.pool != nil {
		if err := h.pool.AcquireFast(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "server busy", "SERVER_BUSY")
			return
		}
		defer h.pool.ReleaseFast()
	}

	raw := r.URL.Query().Get("dice")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "dice is required", "MISSING_DICE")
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid dice %q", raw), "INVALID_DICE")
		return
	}

	d, err := h.engine.Distribution(n)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DistributionToResponse(d, h.engine.Exact()))
}
