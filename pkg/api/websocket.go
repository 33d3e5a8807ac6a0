package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = wsPongWait * 9 / 10
	wsMaxMessage   = 4096
	wsQueueSize    = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API sets Access-Control-Allow-Origin: * as well.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSRequest is one query sent by a WebSocket client. Type selects the
// query ("move", "distribution" or "ping"); ID is echoed in the reply.
type WSRequest struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// WSResponse answers a WSRequest. Type is "result", "error" or "pong".
type WSResponse struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// wsQuery answers the payload of one request type.
type wsQuery func(h *Handlers, payload json.RawMessage) (interface{}, error)

var wsQueries = map[string]wsQuery{
	"move":         wsMove,
	"distribution": wsDistribution,
}

// errBadPayload marks a payload that did not decode.
type errBadPayload struct{ err error }

func (e errBadPayload) Error() string { return "invalid payload: " + e.err.Error() }

func wsMove(h *Handlers, payload json.RawMessage) (interface{}, error) {
	var req MoveRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errBadPayload{err}
	}
	return h.resolveMove(req)
}

func wsDistribution(h *Handlers, payload json.RawMessage) (interface{}, error) {
	var req DistributionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, errBadPayload{err}
	}
	d, err := h.engine.Distribution(req.Dice)
	if err != nil {
		return nil, err
	}
	return DistributionToResponse(d, h.engine.Exact()), nil
}

// wsSession serves one upgraded connection. Replies are queued to a single
// writer goroutine, which also sends keepalive pings. done is closed when
// the writer exits, after which nothing drains queue.
type wsSession struct {
	h     *Handlers
	conn  *websocket.Conn
	queue chan WSResponse
	done  chan struct{}
}

// WebSocket upgrades the request and answers policy queries until the
// client goes away.
func (h *Handlers) WebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s := &wsSession{
		h:     h,
		conn:  conn,
		queue: make(chan WSResponse, wsQueueSize),
		done:  make(chan struct{}),
	}
	go s.writeLoop()
	s.readLoop()
}

func (s *wsSession) readLoop() {
	defer close(s.queue)

	s.conn.SetReadLimit(wsMaxMessage)
	s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var req WSRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.logger.Debug("websocket read", zap.Error(err))
			}
			return
		}
		if !s.send(s.answer(req)) {
			return
		}
	}
}

// send queues resp for the writer. It reports false once the writer is gone.
func (s *wsSession) send(resp WSResponse) bool {
	select {
	case s.queue <- resp:
		return true
	case <-s.done:
		return false
	}
}

func (s *wsSession) writeLoop() {
	ticker := time.NewTicker(wsPingInterval)
	defer func() {
		ticker.Stop()
		close(s.done)
		// Closing the connection also unblocks a pending read.
		s.conn.Close()
	}()

	for {
		select {
		case resp, ok := <-s.queue:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := s.conn.WriteJSON(resp); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) answer(req WSRequest) WSResponse {
	if req.Type == "ping" {
		return WSResponse{Type: "pong", ID: req.ID}
	}
	query, ok := wsQueries[req.Type]
	if !ok {
		return WSResponse{Type: "error", ID: req.ID, Error: "unknown message type " + req.Type, Code: "UNKNOWN_TYPE"}
	}
	result, err := query(s.h, req.Payload)
	if err != nil {
		code := "INVALID_JSON"
		if _, bad := err.(errBadPayload); !bad {
			_, code = classifyError(err)
		}
		return WSResponse{Type: "error", ID: req.ID, Error: err.Error(), Code: code}
	}
	return WSResponse{Type: "result", ID: req.ID, Payload: result}
}
