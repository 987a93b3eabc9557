// Package devserver serves the destination tree during development with
// live reload, a status endpoint and Prometheus metrics.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/sitepipe/internal/config"
	"git.home.luguber.info/inful/sitepipe/internal/events"
	ferrors "git.home.luguber.info/inful/sitepipe/internal/foundation/errors"
	"git.home.luguber.info/inful/sitepipe/internal/livereload"
	"git.home.luguber.info/inful/sitepipe/internal/logfields"
	"git.home.luguber.info/inful/sitepipe/internal/metrics"
	smw "git.home.luguber.info/inful/sitepipe/internal/server/middleware"
)

const (
	StatusPath  = "/__sitepipe/status"
	MetricsPath = "/__sitepipe/metrics"

	shutdownTimeout = 5 * time.Second
)

// Server is the development HTTP server. It can be started once.
type Server struct {
	cfg      *config.Config
	hub      *livereload.Hub
	bus      *events.Bus
	registry *prom.Registry
	log      *slog.Logger
	errs     *ferrors.HTTPErrorAdapter

	mu      sync.Mutex
	started bool
	addr    string
	done    chan struct{}
	status  map[string]CategoryStatus
	since   time.Time
}

// CategoryStatus is the last completed run of a category.
type CategoryStatus struct {
	RunID      string    `json:"run_id"`
	Finished   time.Time `json:"finished"`
	DurationMS int64     `json:"duration_ms"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Aborted    bool      `json:"aborted,omitempty"`
	Errors     []string  `json:"errors,omitempty"`
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// WithHub enables the live-reload endpoints and HTML script injection.
func WithHub(h *livereload.Hub) Option { return func(s *Server) { s.hub = h } }

// WithBus publishes ServerReady and tracks TaskCompleted for the status endpoint.
func WithBus(b *events.Bus) Option { return func(s *Server) { s.bus = b } }

// WithRegistry exposes reg on the metrics endpoint.
func WithRegistry(reg *prom.Registry) Option { return func(s *Server) { s.registry = reg } }

func New(cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		log:    slog.Default(),
		done:   make(chan struct{}),
		status: map[string]CategoryStatus{},
	}
	for _, o := range opts {
		o(s)
	}
	s.errs = ferrors.NewHTTPErrorAdapter(s.log)
	return s
}

// Handler assembles the routes behind request IDs, logging and recovery.
// No request timeout: the live-reload stream stays open.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(smw.Chain(s.log, s.errs))

	r.Get(StatusPath, s.handleStatus)
	if s.registry != nil {
		r.Method(http.MethodGet, MetricsPath, metrics.HTTPHandler(s.registry))
	}
	static := s.static()
	if s.hub != nil && s.cfg.Server.LiveReload {
		r.Method(http.MethodGet, livereload.EventsPath, s.hub)
		r.Get(livereload.ScriptPath, livereload.ServeScript)
		static = livereload.Injector(static)
	}
	r.Method(http.MethodGet, "/*", static)
	r.Method(http.MethodHead, "/*", static)
	return r
}

// static serves the destination root without caching; a stale asset after
// a rebuild defeats the purpose of the dev server.
func (s *Server) static() http.Handler {
	fs := http.FileServer(noListing{http.Dir(s.cfg.DestRoot())})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		w.Header().Set("Expires", "0")
		fs.ServeHTTP(w, r)
	})
}

// noListing hides directory listings; a directory without index.html is a 404.
type noListing struct{ fs http.FileSystem }

func (n noListing) Open(name string) (http.File, error) {
	f, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if st.IsDir() {
		idx, err := n.fs.Open(path.Join(name, "index.html"))
		if err != nil {
			_ = f.Close()
			return nil, os.ErrNotExist
		}
		_ = idx.Close()
	}
	return f, nil
}

// Start binds the listener synchronously and serves in the background until
// ctx is done. A bind failure is returned as a server error. Calling Start
// more than once is a validation error.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ferrors.ValidationError("dev server already started").Build()
	}
	s.started = true
	s.mu.Unlock()

	bind := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", bind)
	if err != nil {
		close(s.done)
		return ferrors.WrapError(err, ferrors.CategoryServer, "bind dev server").
			WithContext("addr", bind).
			Fatal().
			Build()
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.since = time.Now()
	s.mu.Unlock()

	if s.bus != nil {
		ch, unsub := events.Subscribe[events.TaskCompleted](s.bus, 16)
		go s.track(ch)
		go func() { <-s.done; unsub() }()
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		defer close(s.done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("Dev server stopped", logfields.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		if s.hub != nil {
			s.hub.Shutdown()
		}
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			s.log.Warn("Dev server shutdown", logfields.Error(err))
		}
	}()

	url := s.URL()
	s.log.Info("Dev server listening", logfields.Addr(s.addr), slog.String("url", url))
	if s.bus != nil {
		if _, err := s.bus.TryPublish(events.ServerReady{Addr: s.addr, URL: url}); err != nil {
			s.log.Debug("ServerReady not delivered", logfields.Error(err))
		}
	}
	return nil
}

// Addr is the bound listener address, empty before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// URL is the local URL of the server, using localhost for wildcard binds.
func (s *Server) URL() string {
	addr := s.Addr()
	if addr == "" {
		return ""
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/"
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// Done is closed once the server has stopped serving.
func (s *Server) Done() <-chan struct{} { return s.done }

func (s *Server) track(ch <-chan events.TaskCompleted) {
	for evt := range ch {
		s.Record(evt)
	}
}

// Record stores evt as the latest run of its category.
func (s *Server) Record(evt events.TaskCompleted) {
	st := CategoryStatus{
		RunID:      evt.RunID,
		Finished:   evt.Finished,
		DurationMS: evt.Finished.Sub(evt.Started).Milliseconds(),
		Processed:  evt.Processed,
		Skipped:    evt.Skipped,
		Failed:     len(evt.Failures),
		Aborted:    evt.Aborted,
	}
	for _, f := range evt.Failures {
		st.Errors = append(st.Errors, f.Message)
	}
	s.mu.Lock()
	s.status[evt.Category] = st
	s.mu.Unlock()
}

type statusResponse struct {
	Addr       string                    `json:"addr"`
	Since      time.Time                 `json:"since"`
	Source     string                    `json:"source"`
	Dest       string                    `json:"dest"`
	LiveReload bool                      `json:"livereload"`
	Clients    int                       `json:"clients"`
	Categories map[string]CategoryStatus `json:"categories"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	resp := statusResponse{
		Addr:       s.addr,
		Since:      s.since,
		Source:     filepath.ToSlash(s.cfg.SourceRoot()),
		Dest:       filepath.ToSlash(s.cfg.DestRoot()),
		LiveReload: s.hub != nil && s.cfg.Server.LiveReload,
		Categories: make(map[string]CategoryStatus, len(s.status)),
	}
	for k, v := range s.status {
		resp.Categories[k] = v
	}
	s.mu.Unlock()
	if s.hub != nil {
		resp.Clients = s.hub.Clients()
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		s.log.Debug("write status", logfields.Error(err))
	}
}
