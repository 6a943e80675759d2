package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gradebook.dev/internal/auth"
	"gradebook.dev/internal/config"
	"gradebook.dev/internal/grades"
	"gradebook.dev/internal/grpcapi"
	"gradebook.dev/internal/httpapi"
	"gradebook.dev/internal/obs"
	"gradebook.dev/internal/revoke"
	"gradebook.dev/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		obs.Logger().Fatal("load config", zap.Error(err))
	}
	logger, err := obs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		obs.Logger().Fatal("build logger", zap.Error(err))
	}
	obs.SetLogger(logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("gradebook-api stopped", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	ctx := context.Background()

	var (
		identities auth.IdentityStore
		gradeStore grades.Store
		probe      httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		store, err := pg.Open(cfg.PGDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		applied, err := store.Init(ctx)
		if err != nil {
			return err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", zap.Strings("migrations", applied))
		}
		identities, gradeStore, probe.DB = store, store.Grades(), store
	} else {
		logger.Warn("GRADEBOOK_PG_DSN not set, using in-memory stores")
		identities, gradeStore = auth.NewMemoryStore(), grades.NewInMemory()
	}

	hasher, err := auth.NewHasher(cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService([]byte(cfg.TokenSecret),
		auth.WithIssuer(cfg.TokenIssuer),
		auth.WithTTL(cfg.TokenTTL),
	)
	if err != nil {
		return err
	}

	opts := []auth.ServiceOption{auth.WithLogger(logger)}
	if cfg.RedisURL != "" {
		list, err := revoke.Dial(ctx, cfg.RedisURL, revoke.WithLogger(logger))
		if err != nil {
			return err
		}
		defer list.Close()
		opts = append(opts, auth.WithRevoker(list))
		probe.Revocation = list
	}
	authSvc, err := auth.NewService(identities, hasher, tokens, opts...)
	if err != nil {
		return err
	}
	gradeSvc, err := grades.NewService(gradeStore, identities)
	if err != nil {
		return err
	}

	api, err := httpapi.New(authSvc, gradeSvc, probe, httpapi.Options{
		Version:        version,
		LoginBurst:     cfg.LoginRateBurst,
		LoginPerSecond: cfg.LoginRatePerSec,
		TrustedProxies: cfg.TrustedProxies,
	})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcSrv, health := grpcapi.NewGRPCServer(authSvc)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTPAddr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("grpc listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case runErr = <-errCh:
		logger.Error("server failed", zap.Error(runErr))
	}

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	done := make(chan struct{})
	go func() {
		grpcSrv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcSrv.Stop()
	}
	logger.Info("stopped")
	return runErr
}
