package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"bank-ledger/internal/auth"
	"bank-ledger/internal/config"
	"bank-ledger/internal/httpapi"
	"bank-ledger/internal/ledger"
	"bank-ledger/internal/store"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startCancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.DBConn)
	if err != nil {
		logger.Fatalf("parse db dsn: %v", err)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConns)
	poolCfg.MinConns = 1
	poolCfg.HealthCheckPeriod = 10 * time.Second
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(startCtx, poolCfg)
	if err != nil {
		logger.Fatalf("connect to database: %v", err)
	}
	defer pool.Close()
	if err := pool.Ping(startCtx); err != nil {
		logger.Fatalf("ping database: %v", err)
	}

	if cfg.Migrate {
		logger.Info("running migrations")
		if err := store.Migrate(startCtx, pool); err != nil {
			logger.Fatalf("migrations failed: %v", err)
		}
	}

	st := store.New(pool)
	authSvc := auth.NewService(st.Users(), logger, cfg.JWTSecret)
	coord := ledger.NewCoordinator(st, logger)
	facade := ledger.NewFacade(st.Accounts(), st.Transactions())
	handlers := httpapi.NewHandlers(authSvc, st.Accounts(), coord, facade, logger)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: httpapi.Router(handlers, authSvc, cfg.HTTPMaxInflight),

		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Infof("listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	waitForShutdown(srv, logger)
}

func waitForShutdown(srv *http.Server, logger *logrus.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	logger.Infof("received signal %v, shutting down", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
	logger.Info("server stopped")
}
