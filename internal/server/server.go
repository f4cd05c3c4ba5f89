// ABOUTME: Daemon orchestrator that wires the store, sync engine, cache router, and listeners
// ABOUTME: Runs the HTTP and optional gRPC health servers and shuts everything down in order

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/snipsync/internal/assets"
	"github.com/2389/snipsync/internal/cache"
	"github.com/2389/snipsync/internal/config"
	"github.com/2389/snipsync/internal/lifecycle"
	"github.com/2389/snipsync/internal/store"
	"github.com/2389/snipsync/internal/syncer"
)

// syncHealthService is the gRPC health service name that tracks connectivity.
const syncHealthService = "snipsync.sync"

// Server is the snipsync daemon.
type Server struct {
	config     *config.Config
	store      store.Store
	engine     *syncer.Engine
	conn       *lifecycle.Connectivity
	trigger    *lifecycle.Trigger
	background *lifecycle.BackgroundTrigger
	logger     *slog.Logger

	// router is nil when no origin is configured
	router *cache.Router

	// remoteCloser releases the remote's resources, if it holds any
	remoteCloser io.Closer

	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server

	cancelLoops context.CancelFunc
	loops       sync.WaitGroup
}

// initStore opens the SQLite store. SNIPSYNC_DB_PATH overrides the
// configured path.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("SNIPSYNC_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a daemon from configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	remote, closer, err := BuildRemote(cfg)
	if err != nil {
		return nil, err
	}
	s, err := newServer(cfg, logger, remote)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}
	s.remoteCloser = closer
	return s, nil
}

func newServer(cfg *config.Config, logger *slog.Logger, remote syncer.Remote) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := syncer.NewEngine(sqlStore, remote, logger)
	conn := lifecycle.NewConnectivity(cfg.Connectivity.ProbeURL, cfg.Connectivity.Interval, nil, logger)
	trigger := lifecycle.NewTrigger(engine, conn, logger)

	s := &Server{
		config:     cfg,
		store:      sqlStore,
		engine:     engine,
		conn:       conn,
		trigger:    trigger,
		background: lifecycle.NewBackgroundTrigger(trigger, cfg.Sync.BackgroundInterval),
		logger:     logger.With("component", "server"),
	}

	if cfg.Origin.URL != "" {
		s.router, err = newCacheRouter(cfg, sqlStore, logger)
		if err != nil {
			_ = sqlStore.Close()
			return nil, err
		}
	}

	if cfg.Server.GRPCAddr != "" {
		s.grpcServer, s.health = newHealthServer()
		conn.OnChange(func(online bool) {
			status := healthpb.HealthCheckResponse_NOT_SERVING
			if online {
				status = healthpb.HealthCheckResponse_SERVING
			}
			s.health.SetServingStatus(syncHealthService, status)
		})
	}

	s.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Closing the event stream ends SSE and websocket handlers so
	// Shutdown is not held open by idle subscribers.
	s.httpServer.RegisterOnShutdown(s.engine.Close)
	return s, nil
}

func newCacheRouter(cfg *config.Config, sqlStore *store.SQLiteStore, logger *slog.Logger) (*cache.Router, error) {
	upstream, err := url.Parse(cfg.Origin.URL)
	if err != nil {
		return nil, fmt.Errorf("parsing origin url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	storage, err := cache.NewSQLiteStorage(ctx, sqlStore.DB())
	if err != nil {
		return nil, err
	}

	page, err := assets.OfflinePage()
	if err != nil {
		return nil, err
	}

	return cache.NewRouter(cache.Config{
		Upstream: upstream,
		Storage:  storage,
		Namespaces: cache.Namespaces{
			Prefix:  cfg.Cache.Prefix,
			Version: cfg.Cache.Version,
		},
		Rules:       cache.DefaultRules(cfg.Cache.APIPrefix, cfg.Cache.DataMarker),
		AppShell:    cfg.Cache.AppShell,
		OfflinePath: cfg.Cache.OfflinePage,
		OfflinePage: &cache.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": {"text/html; charset=utf-8"}},
			Body:       page,
		},
		RefreshTimeout: cfg.Cache.RefreshTimeout,
		Logger:         logger,
	})
}

func newHealthServer() (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(syncHealthService, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, hs)
	return server, hs
}

// Engine returns the sync engine.
func (s *Server) Engine() *syncer.Engine {
	return s.engine
}

// Router returns the cache router, or nil without an origin.
func (s *Server) Router() *cache.Router {
	return s.router
}

// setupListeners opens the HTTP listener and, if configured, the gRPC one.
func (s *Server) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting snipsync",
		"http_addr", s.config.Server.HTTPAddr,
		"grpc_addr", s.config.Server.GRPCAddr,
	)

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	if s.grpcServer != nil {
		grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
		if err != nil {
			_ = httpLn.Close()
			return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
		}
	}
	return grpcLn, httpLn, nil
}

// startServers starts the servers in goroutines, returning an error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	if grpcLn != nil {
		go func() {
			s.logger.Info("gRPC health server listening", "addr", grpcLn.Addr().String())
			if err := s.grpcServer.Serve(grpcLn); err != nil {
				errCh <- fmt.Errorf("gRPC server: %w", err)
			}
		}()
	}

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// startLoops runs connectivity probing, the background trigger, and an
// initial sync.
func (s *Server) startLoops(ctx context.Context) {
	ctx, s.cancelLoops = context.WithCancel(ctx)
	s.trigger.WatchConnectivity(ctx, s.conn)

	s.loops.Add(3)
	go func() {
		defer s.loops.Done()
		s.conn.Run(ctx)
	}()
	go func() {
		defer s.loops.Done()
		s.background.Run(ctx)
	}()
	go func() {
		defer s.loops.Done()
		s.trigger.Fire(ctx, "startup")
	}()
}

// prepareCache installs the app shell if configured and activates the
// current namespace generation. A failed install is retried on the next
// start; serving continues without the pre-cached shell.
func (s *Server) prepareCache(ctx context.Context) error {
	if s.router == nil {
		return nil
	}
	if s.config.Cache.InstallOnStart {
		if err := s.router.Install(ctx); err != nil {
			s.logger.Warn("app shell install failed", "error", err)
		}
	}
	if err := s.router.Activate(ctx); err != nil {
		return fmt.Errorf("activating cache: %w", err)
	}
	return nil
}

// Run starts the daemon and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Server) Run(ctx context.Context) error {
	if err := s.prepareCache(ctx); err != nil {
		return err
	}

	grpcLn, httpLn, err := s.setupListeners()
	if err != nil {
		return err
	}

	s.startLoops(context.WithoutCancel(ctx))
	errCh := s.startServers(grpcLn, httpLn)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	if s.grpcServer == nil {
		return
	}
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers and background loops and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down snipsync")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
	s.shutdownGRPCServer(ctx)

	if s.cancelLoops != nil {
		s.cancelLoops()
	}
	s.loops.Wait()
	s.trigger.Wait()
	if s.router != nil {
		s.router.Wait()
	}
	s.engine.Close()

	if s.remoteCloser != nil {
		errs = appendCloseError(errs, "remote close", s.remoteCloser.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
