// Package web provides the HTTP status page and write endpoints for the
// extio daemon.
package web

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/sweeney/extio/internal/board"
	"github.com/sweeney/extio/internal/status"
)

// maxBody caps write request bodies; values are a few characters.
const maxBody = 64

// Server serves the status page and queues board writes.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	commands   chan<- board.Command
	logger     *log.Logger
}

// New creates a Server that reads state from the given tracker and queues
// write requests on commands. A nil commands channel rejects every write.
func New(addr string, tracker *status.Tracker, commands chan<- board.Command, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{tracker: tracker, commands: commands, logger: logger}

	router := httprouter.New()
	router.GET("/", s.handleIndex)
	router.GET("/index.html", s.handleIndex)
	router.GET("/index.json", s.handleJSON)
	router.PUT("/outputs", s.handlePort)
	router.PUT("/outputs/:pin", s.handlePin)
	router.PUT("/dac/:channel", s.handleDAC)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: router,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, snap); err != nil {
		s.logger.Error("render index", "err", err)
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handlePin(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	pin, err := strconv.Atoi(ps.ByName("pin"))
	if err != nil {
		http.Error(w, "bad pin", http.StatusBadRequest)
		return
	}
	v, err := readValue(r, 1)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueue(w, board.Command{Kind: board.CmdWritePin, Index: pin, Value: uint32(v)})
}

func (s *Server) handlePort(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	v, err := readValue(r, 0xFFFFFFFF)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueue(w, board.Command{Kind: board.CmdWritePort, Value: uint32(v)})
}

func (s *Server) handleDAC(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ch, err := strconv.Atoi(ps.ByName("channel"))
	if err != nil {
		http.Error(w, "bad channel", http.StatusBadRequest)
		return
	}
	v, err := readValue(r, 0xFFFF)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.enqueue(w, board.Command{Kind: board.CmdSetChannel, Index: ch, Value: uint32(v)})
}

func (s *Server) enqueue(w http.ResponseWriter, cmd board.Command) {
	select {
	case s.commands <- cmd:
		s.logger.Debug("command queued", "cmd", cmd)
		w.WriteHeader(http.StatusAccepted)
		fmt.Fprintf(w, "queued %s\n", cmd)
	default:
		s.logger.Warn("dropping command", "cmd", cmd, "err", "queue full")
		http.Error(w, "command queue full", http.StatusServiceUnavailable)
	}
}

// readValue parses a decimal or 0x-prefixed body no larger than max.
func readValue(r *http.Request, max uint64) (uint64, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		return 0, errors.Wrap(err, "read body")
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return 0, errors.New("empty body")
	}
	v, err := strconv.ParseUint(text, 0, 64)
	if err != nil {
		return 0, errors.Errorf("bad value %q", text)
	}
	if v > max {
		return 0, errors.Errorf("value %d out of range 0..%d", v, max)
	}
	return v, nil
}
