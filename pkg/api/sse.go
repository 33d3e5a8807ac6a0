package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/policy"
)

// SolveSSE streams the progress of a full optimal solve.
// GET /api/solve/stream?workers=...
//
// A progress event is sent once per completed score row. Closing the
// connection cancels the solve; states already solved stay in the table.
func (h *Handlers) SolveSSE(w http.ResponseWriter, r *http.Request) {
	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeSSEError(w, "streaming not supported")
		return
	}
	// A full solve outlives server.write_timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	workers := parseIntParam(r.URL.Query().Get("workers"), 0)
	if workers < 0 {
		writeSSEError(w, "workers must not be negative")
		return
	}
	if workers == 0 {
		workers = runtime.NumCPU()
	}

	if h.pool != nil {
		if err := h.pool.AcquireSlow(r.Context()); err != nil {
			writeSSEError(w, "server busy")
			return
		}
		defer h.pool.ReleaseSlow()
	}

	goal := h.engine.Goal()
	var mu sync.Mutex
	progress := func(done, total int) {
		if done%goal != 0 && done != total {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		writeSSEEvent(w, "progress", SolveProgress{
			Done:    done,
			Total:   total,
			Percent: float64(done) * 100 / float64(total),
		})
		flusher.Flush()
	}

	start := time.Now()
	solver := h.engine.Optimal()
	if err := solver.SolveAll(r.Context(), workers, progress); err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("solve stream canceled by client", zap.Error(err))
			return
		}
		h.logger.Error("solve stream failed", zap.Error(err))
		mu.Lock()
		writeSSEError(w, "solve failed: "+err.Error())
		mu.Unlock()
		return
	}

	opening, err := solver.Solve(policy.State{})
	if err != nil {
		mu.Lock()
		writeSSEError(w, "solve failed: "+err.Error())
		mu.Unlock()
		return
	}
	stats := solver.Stats()

	mu.Lock()
	defer mu.Unlock()
	writeSSEEvent(w, "result", SolveResult{
		Goal:          goal,
		States:        solver.Table().Len(),
		Computed:      stats.Solved,
		HitRate:       stats.HitRate(),
		OpeningMove:   opening.Move,
		OpeningWinPct: opening.WinProbFloat() * 100,
		ElapsedMs:     time.Since(start).Milliseconds(),
	})
	flusher.Flush()

	// Send done event to signal completion
	writeSSEEvent(w, "done", nil)
	flusher.Flush()
}

// writeSSEEvent writes a Server-Sent Event to the response.
func writeSSEEvent(w http.ResponseWriter, event string, data interface{}) {
	fmt.Fprintf(w, "event: %s\n", event)
	if data != nil {
		jsonData, _ := json.Marshal(data)
		fmt.Fprintf(w, "data: %s\n", jsonData)
	}
	fmt.Fprintf(w, "\n")
}

// writeSSEError writes an error event and closes the stream.
func writeSSEError(w http.ResponseWriter, message string) {
	writeSSEEvent(w, "error", map[string]string{"error": message})
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

// parseIntParam parses an integer from a string with a default value.
func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return val
}
