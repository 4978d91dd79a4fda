package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/labeldash/internal/history"
	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Session is the part of the session manager the API uses.
// *session.Manager satisfies it.
type Session interface {
	Identity() string
	Snapshot() session.Snapshot
	Subscribe(topic string)
	Unsubscribe(topic string)
	Sync(ctx context.Context) error
	Watch() *session.Watcher
}

// Submitter queues print jobs. *labels.Submitter satisfies it.
type Submitter interface {
	Submit(ctx context.Context, job labels.PrintJob) (labels.Submission, error)
}

// JobHistory lists recorded print jobs. *history.Repository satisfies it.
type JobHistory interface {
	List(ctx context.Context, limit int) ([]history.Entry, error)
}

// HealthChecker is a dependency whose health is reported by /api/v1/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    *config.Config
	Logger    *logging.Logger
	Session   Session
	Submitter Submitter

	// Optional.
	History  JobHistory
	Database DBStatsProvider
	Metrics  http.Handler
	Checks   map[string]HealthChecker
	PanelDir string
	Version  string
}

// Server is the HTTP API server for labeldash.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	session   Session
	submitter Submitter
	history   JobHistory
	db        DBStatsProvider
	metrics   http.Handler
	checks    map[string]HealthChecker
	panelDir  string
	version   string
	startTime time.Time

	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If a required dependency is missing
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session is required")
	}
	if deps.Submitter == nil {
		return nil, fmt.Errorf("submitter is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		session:   deps.Session,
		submitter: deps.Submitter,
		history:   deps.History,
		db:        deps.Database,
		metrics:   deps.Metrics,
		checks:    deps.Checks,
		panelDir:  deps.PanelDir,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.Config.WebSocket, deps.Logger),
	}, nil
}

// Start binds the listener and serves in the background.
//
// It also starts the WebSocket hub and relays session snapshots to it until
// Close is called or ctx is cancelled.
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding API listener: %w", err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.hub.Run(srvCtx)
	}()
	go func() {
		defer s.wg.Done()
		s.relaySnapshots(srvCtx)
	}()

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// relaySnapshots broadcasts every session snapshot to WebSocket clients.
func (s *Server) relaySnapshots(ctx context.Context) {
	w := s.session.Watch()
	defer w.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-w.C:
			if !ok {
				return
			}
			s.hub.Broadcast(ChannelSession, snap)
		}
	}
}
