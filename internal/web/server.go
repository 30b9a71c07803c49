// Package web provides the HTTP status page and presentation API for the
// power-sensor daemon.
package web

import (
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sweeney/power-sensor/internal/logic"
	"github.com/sweeney/power-sensor/internal/monitor"
	"github.com/sweeney/power-sensor/internal/status"
)

// Backend is the part of the monitor the HTTP layer uses.
type Backend interface {
	ReadLog(ctx context.Context) (logic.Log, error)
	WriteLog(ctx context.Context, l logic.Log) error
	Query(ctx context.Context, date string, kind logic.Kind) (monitor.QueryResult, error)
	Subscribe(buffer int) (<-chan monitor.Change, func())
}

// PowerReader reads the instantaneous power state. power.Reader satisfies it.
type PowerReader interface {
	Read() (logic.Kind, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the error logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithAccessLog writes one Apache combined-format line per request to w.
func WithAccessLog(w io.Writer) Option {
	return func(s *Server) { s.accessLog = w }
}

// WithMetrics serves h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithClock overrides time.Now (used to pick "today").
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	backend    Backend
	power      PowerReader
	log        zerolog.Logger
	accessLog  io.Writer
	metrics    http.Handler
	now        func() time.Time

	// closed on Shutdown so open event streams return
	quit chan struct{}
}

// New creates a Server that reads state from the given tracker and backend.
// power may be nil, in which case /api/power reports the last reading.
func New(addr string, tracker *status.Tracker, backend Backend, power PowerReader, opts ...Option) *Server {
	s := &Server{
		tracker: tracker,
		backend: backend,
		power:   power,
		log:     zerolog.Nop(),
		now:     time.Now,
		quit:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.json", s.handleJSON).Methods(http.MethodGet)

	r.HandleFunc("/api/log", s.handleReadLog).Methods(http.MethodGet)
	r.HandleFunc("/api/log", s.handleWriteLog).Methods(http.MethodPut)
	r.HandleFunc("/api/power", s.handlePower).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/stream", s.handleStream).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	var h http.Handler = r
	if s.accessLog != nil {
		h = handlers.CombinedLoggingHandler(s.accessLog, h)
	}
	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(true), handlers.RecoveryLogger(recoveryLogger{s.log}))(h)
}

type recoveryLogger struct{ log zerolog.Logger }

func (l recoveryLogger) Println(v ...interface{}) {
	l.log.Error().Interface("panic", v).Msg("http handler panicked")
}

// Handler returns the root handler. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown ends open event streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()

	date := r.URL.Query().Get("date")
	if date == "" {
		date = logic.DayKey(s.now())
	}
	kind, err := parseKindParam(r.URL.Query().Get("kind"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	page := pageData{Snapshot: snap, Uptime: snap.Uptime(), Date: date, Kind: kind}
	res, err := s.backend.Query(r.Context(), date, kind)
	if err != nil {
		page.QueryError = err.Error()
	} else {
		page.Result = res
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := renderHTML(w, page); err != nil {
		s.log.Warn().Err(err).Msg("render status page")
	}
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}
