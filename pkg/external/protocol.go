// Package external implements a plain-text line protocol for policy
// queries over TCP, for clients that do not speak HTTP.
//
// Protocol overview:
//   - Server listens on a TCP port
//   - Client sends one command per line
//   - Commands include: move, winprob, dist, tail, set, version, exit
//   - Each response is one or more lines ending in '\n'
package external

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/yourusername/hogengine/internal/policy"
	"github.com/yourusername/hogengine/internal/rules"
	"github.com/yourusername/hogengine/pkg/engine"
)

// Version is reported by the version command.
const Version = "hogengine line protocol 1.0"

// Server implements the line protocol server.
type Server struct {
	engine   *engine.Engine
	listener net.Listener
	mu       sync.Mutex
	running  bool
	options  ServerOptions
	logger   *zap.Logger
	active   map[net.Conn]struct{}
	conns    sync.WaitGroup
}

// ServerOptions configures the server and the defaults of each session.
type ServerOptions struct {
	Addr          string            // TCP address to listen on
	Policy        engine.PolicyKind // Policy used by "move"
	LossSwitch    int               // Hybrid loss switch
	EndSwitch     int               // Hybrid end switch
	PromptEnabled bool              // Send "> " after responses
}

// DefaultServerOptions returns sensible defaults.
func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		Addr:          ":1234",
		Policy:        engine.PolicyOptimal,
		LossSwitch:    engine.DefaultLossSwitch,
		EndSwitch:     engine.DefaultEndSwitch,
		PromptEnabled: true,
	}
}

// session holds the settings one connection has changed with "set".
type session struct {
	policy     engine.PolicyKind
	lossSwitch int
	endSwitch  int
	prompt     bool
}

// NewServer creates a new line protocol server.
func NewServer(eng *engine.Engine, opts ServerOptions, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		engine:  eng,
		options: opts,
		logger:  logger,
	}
}

// Start begins listening for connections.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", s.options.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.options.Addr, err)
	}

	s.listener = listener
	s.running = true
	s.active = make(map[net.Conn]struct{})
	s.logger.Info("line protocol listening", zap.String("addr", listener.Addr().String()))

	go s.acceptLoop(listener)

	return nil
}

// Addr returns the listening address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections and waits for open ones to finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	err := s.listener.Close()
	for conn := range s.active {
		conn.Close()
	}
	s.mu.Unlock()

	s.conns.Wait()
	return err
}

func (s *Server) acceptLoop(listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.active[conn] = struct{}{}
		s.conns.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.conns.Done()
			defer s.forget(conn)
			s.handleConnection(conn)
		}()
	}
}

func (s *Server) forget(conn net.Conn) {
	s.mu.Lock()
	delete(s.active, conn)
	s.mu.Unlock()
}

func (s *Server) newSession() *session {
	return &session{
		policy:     s.options.Policy,
		lossSwitch: s.options.LossSwitch,
		endSwitch:  s.options.EndSwitch,
		prompt:     s.options.PromptEnabled,
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	sess := s.newSession()
	reader := bufio.NewReader(conn)

	if sess.prompt {
		conn.Write([]byte("> "))
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Debug("connection read failed", zap.Error(err))
			}
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if _, err := conn.Write([]byte(s.processCommand(sess, line))); err != nil {
			return
		}

		command := strings.ToLower(strings.Fields(line)[0])
		if command == "exit" || command == "quit" {
			return
		}

		if sess.prompt {
			conn.Write([]byte("> "))
		}
	}
}

// processCommand processes a single command and returns the response.
func (s *Server) processCommand(sess *session, cmd string) string {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return "Error: empty command\n"
	}

	switch strings.ToLower(parts[0]) {
	case "version":
		return Version + "\n"
	case "help":
		return helpResponse
	case "exit", "quit":
		return "Goodbye\n"
	case "set":
		return handleSet(sess, parts[1:])
	case "move":
		return s.handleMove(sess, parts[1:])
	case "winprob":
		return s.handleWinProb(parts[1:])
	case "dist":
		return s.handleDist(parts[1:])
	case "tail":
		return handleTail(parts[1:])
	default:
		return fmt.Sprintf("Error: unknown command '%s'\n", parts[0])
	}
}

const helpResponse = `Available commands:
  move <score> <opp>     - Dice to roll under the session policy
  winprob <score> <opp>  - Optimal move and exact win probability
  dist <n>               - Turn score distribution for n dice
  tail <opp>             - Points for rolling zero dice
  set <opt> <value>      - Set option (policy, loss, end, prompt)
  version                - Show version information
  exit                   - Close connection
`

func handleSet(sess *session, args []string) string {
	if len(args) < 2 {
		return "Error: set requires option and value\n"
	}

	option := strings.ToLower(args[0])
	value := args[1]

	switch option {
	case "policy":
		kind, err := engine.ParsePolicyKind(value)
		if err != nil {
			return fmt.Sprintf("Error: %v\n", err)
		}
		sess.policy = kind
		return fmt.Sprintf("policy set to %s\n", kind)

	case "loss", "end":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Sprintf("Error: %s must be a non-negative integer\n", option)
		}
		if option == "loss" {
			sess.lossSwitch = n
		} else {
			sess.endSwitch = n
		}
		return fmt.Sprintf("%s set to %d\n", option, n)

	case "prompt":
		sess.prompt = value == "on" || value == "true" || value == "1"
		return fmt.Sprintf("prompt set to %v\n", sess.prompt)

	default:
		return fmt.Sprintf("Error: unknown option '%s'\n", option)
	}
}

// parseInts parses exactly n integer arguments.
func parseInts(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("expected %d arguments, got %d", n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", a)
		}
		out[i] = v
	}
	return out, nil
}

func (s *Server) handleMove(sess *session, args []string) string {
	v, err := parseInts(args, 2)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	state := policy.State{Score: v[0], OpponentScore: v[1]}
	move, err := s.engine.Decide(sess.policy, state, sess.lossSwitch, sess.endSwitch)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	return fmt.Sprintf("%d\n", move)
}

func (s *Server) handleWinProb(args []string) string {
	v, err := parseInts(args, 2)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	entry, err := s.engine.Optimal().Solve(policy.State{Score: v[0], OpponentScore: v[1]})
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	return fmt.Sprintf("%d %s %.6f\n", entry.Move, entry.WinProb.RatString(), entry.WinProbFloat())
}

func (s *Server) handleDist(args []string) string {
	v, err := parseInts(args, 1)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	d, err := s.engine.Distribution(v[0])
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	var b strings.Builder
	for _, o := range d.Outcomes {
		fmt.Fprintf(&b, "%d %s\n", o.Value, o.Prob.RatString())
	}
	return b.String()
}

func handleTail(args []string) string {
	v, err := parseInts(args, 1)
	if err != nil {
		return fmt.Sprintf("Error: %v\n", err)
	}
	if v[0] < 0 {
		return "Error: opponent score must not be negative\n"
	}
	return fmt.Sprintf("%d\n", rules.TailPoints(v[0]))
}
