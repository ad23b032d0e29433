package server

import (
	"log/slog"
	"net/http"

	"github.com/sanchita-suni/Calyx/pkg/gateway/config"
	"github.com/sanchita-suni/Calyx/pkg/gateway/handlers"
	"github.com/sanchita-suni/Calyx/pkg/gateway/lifecycle"
	"github.com/sanchita-suni/Calyx/pkg/gateway/live/sessions"
	"github.com/sanchita-suni/Calyx/pkg/gateway/metrics"
	"github.com/sanchita-suni/Calyx/pkg/gateway/mw"
)

// Options carries the process-wide collaborators. Zero values are usable:
// missing pieces are created or degrade the routes that need them.
type Options struct {
	Runtime     *handlers.Runtime
	Metrics     *metrics.Metrics
	Lifecycle   *lifecycle.Lifecycle
	Sessions    *sessions.Registry
	ReadyChecks []handlers.ReadyCheck
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	runtime   *handlers.Runtime
	metrics   *metrics.Metrics
	lifecycle *lifecycle.Lifecycle
	sessions  *sessions.Registry
	checks    []handlers.ReadyCheck
}

func New(cfg config.Config, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Runtime == nil {
		opts.Runtime = &handlers.Runtime{}
	}
	if opts.Lifecycle == nil {
		opts.Lifecycle = &lifecycle.Lifecycle{}
	}
	if opts.Sessions == nil {
		opts.Sessions = sessions.NewRegistry()
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		runtime:   opts.Runtime,
		metrics:   opts.Metrics,
		lifecycle: opts.Lifecycle,
		sessions:  opts.Sessions,
		checks:    opts.ReadyChecks,
	}

	s.routes()
	return s
}

// Sessions returns the registry of live connections, for shutdown.
func (s *Server) Sessions() *sessions.Registry { return s.sessions }

// Lifecycle returns the drain flag shared by the handlers.
func (s *Server) Lifecycle() *lifecycle.Lifecycle { return s.lifecycle }

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{
		Config:    s.cfg,
		Lifecycle: s.lifecycle,
		Checks:    s.checks,
	})
	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.mux.Handle("/ws/chat", handlers.ChatHandler{
		Config:    s.cfg,
		Runtime:   s.runtime,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Metrics:   s.metrics,
	})
	s.mux.Handle("/ws/twilio", handlers.TwilioHandler{
		Config:    s.cfg,
		Runtime:   s.runtime,
		Logger:    s.logger,
		Lifecycle: s.lifecycle,
		Sessions:  s.sessions,
		Metrics:   s.metrics,
	})
	s.mux.Handle("/download/{file}", handlers.DownloadHandler{
		Vault:  s.runtime.Vault,
		Logger: s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Instrument(s.metrics, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}
