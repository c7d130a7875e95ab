// Package app builds the process runtime and serves the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/config"
	"github.com/wealthvault/backend/internal/db"
	"github.com/wealthvault/backend/internal/http/api"
	"github.com/wealthvault/backend/internal/http/api/front"
	"github.com/wealthvault/backend/internal/ratelimit"
)

const shutdownTimeout = 30 * time.Second

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close(conn) }()
	return db.Migrate(conn)
}

// RunServer loads configuration, starts the background tasks and serves the API until ctx is done.
// A positive portOverride replaces the configured port.
func RunServer(ctx context.Context, cfg config.AppConfig, portOverride int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	serviceCfg, err := config.LoadServiceConfig(configPath)
	if err != nil {
		return err
	}
	if portOverride > 0 {
		serviceCfg.Server.Port = portOverride
	}
	jwtCfg, _ := config.LoadJWTConfig(configPath)
	if strings.TrimSpace(jwtCfg.Secret) == "" {
		return errors.New("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")
	}

	if errLogging := SetupLogging(serviceCfg.Logging); errLogging != nil {
		return errLogging
	}

	rt, err := NewRuntime(ctx, dsn, serviceCfg, RuntimeOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if errClose := rt.Close(); errClose != nil {
			log.WithError(errClose).Warn("runtime close failed")
		}
	}()

	if errStart := rt.Start(ctx); errStart != nil {
		return errStart
	}

	engine := api.NewRouter(api.Dependencies{
		DB:      rt.DB,
		JWT:     jwtCfg,
		Front:   rt.FrontServices(),
		Runner:  rt.Runner,
		Metrics: rt.Metrics,
		Debug:   serviceCfg.Server.Debug,
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", serviceCfg.Server.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting wealthvault api on %s with config=%s", server.Addr, configPath)
		if errServe := server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe := <-errCh:
		if errServe != nil {
			return fmt.Errorf("app: serve: %w", errServe)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down api server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("app: shutdown: %w", errShutdown)
	}
	log.Info("api server stopped")
	return nil
}

// FrontServices exposes the runtime's services to the user-facing routes.
func (rt *Runtime) FrontServices() front.Services {
	svc := front.Services{
		Store:      rt.Store,
		NetWorth:   rt.NetWorth,
		Converter:  rt.Converter,
		Portfolio:  rt.Portfolio,
		Evaluator:  rt.Evaluator,
		Dispatcher: rt.Dispatcher,
		Now:        time.Now,
		RateLimitPolicy: ratelimit.Policy{
			Default: rt.cfg.RateLimit.Default,
			Plans:   rt.cfg.RateLimit.Plans,
		},
	}
	if rt.Limiter != nil {
		svc.Limiter = rt.Limiter
	}
	return svc
}
