package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skarvik/accountd/pkg/api/store"
	"github.com/skarvik/accountd/pkg/config"
	"github.com/skarvik/accountd/pkg/hashgate"
	"github.com/skarvik/accountd/pkg/session"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle. Fatal delivers at most
// one unrecoverable background error; the supervisor is expected to
// terminate the process when it fires.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Fatal() <-chan error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log        logrus.FieldLogger
	cfg        *config.Config
	store      store.Store
	gate       *hashgate.Gate
	sessions   *session.Manager
	spa        *spaServer
	httpServer *http.Server
	wg         sync.WaitGroup
	done       chan struct{}
	fatal      chan error
	stopSweep  context.CancelFunc
}

// NewServer creates a new API server.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
) Server {
	return &server{
		log:   log.WithField("component", "api"),
		cfg:   cfg,
		done:  make(chan struct{}),
		fatal: make(chan error, 1),
	}
}

// Start opens the store, seeds the built-in admin, launches the session
// sweeper, and starts the HTTP server.
func (s *server) Start(ctx context.Context) error {
	s.gate = hashgate.New(
		s.cfg.Auth.MaxHashWorkers, []byte(s.cfg.Auth.Pepper),
	)

	s.store = store.NewStore(s.log, &s.cfg.Database)
	if err := s.store.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	// The built-in admin's password comes from config on every start,
	// so a lost credential is fixed by restarting with a new one.
	adminHash, err := s.gate.Hash(ctx, s.cfg.Auth.AdminPassword)
	if err != nil {
		return fmt.Errorf("hashing admin password: %w", err)
	}

	if err := s.store.SeedAdmin(ctx, adminHash); err != nil {
		return fmt.Errorf("seeding admin: %w", err)
	}

	s.sessions = session.NewManager(s.log, s.store, s.gate, session.Config{
		LoginDelay:         s.cfg.Auth.LoginDelayDuration(),
		SessionTTL:         s.cfg.Auth.SessionTTLDuration(),
		ExtendedSessionTTL: s.cfg.Auth.ExtendedSessionTTLDuration(),
		SweepInterval:      s.cfg.Auth.SweepIntervalDuration(),
	})

	if s.cfg.Server.StaticDir != "" {
		s.spa = newSPAServer(s.log, s.cfg.Server.StaticDir)

		s.log.WithField("dir", s.cfg.Server.StaticDir).
			Info("Static frontend serving enabled")
	}

	router := s.buildRouter()

	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Run the expired-session sweeper. A sweep failure is a storage
	// fault the process must not outlive, so it surfaces on Fatal
	// instead of being retried.
	sweepCtx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		if err := s.sessions.RunSweeper(sweepCtx); err != nil {
			select {
			case s.fatal <- fmt.Errorf("session sweeper: %w", err):
			default:
			}
		}
	}()

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.Server.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", s.cfg.Server.Listen).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server, stops the sweeper, and
// closes the store.
func (s *server) Stop() error {
	close(s.done)

	if s.stopSweep != nil {
		s.stopSweep()
	}

	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	if s.store != nil {
		if err := s.store.Stop(); err != nil {
			return fmt.Errorf("stopping store: %w", err)
		}
	}

	s.log.Info("API server stopped")

	return nil
}

// Fatal delivers unrecoverable background errors.
func (s *server) Fatal() <-chan error {
	return s.fatal
}
