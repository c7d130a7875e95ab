package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/wealthvault/backend/internal/app"
	"github.com/wealthvault/backend/internal/config"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if errRun := run(ctx, os.Args[1:]); errRun != nil {
		log.WithError(errRun).Error("command failed")
		stop()
		os.Exit(1)
	}
}

// run loads .env, parses flags and either migrates the database or serves the API.
func run(ctx context.Context, args []string) error {
	if errEnv := godotenv.Load(); errEnv != nil && !errors.Is(errEnv, os.ErrNotExist) {
		log.WithError(errEnv).Warn("load .env failed")
	}

	fs := flag.NewFlagSet("wealthvault", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	port := fs.Int("port", 0, "server port, overrides server.port and PORT")
	migrateOnly := fs.Bool("migrate", false, "run database migrations and exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if *port != 0 {
		if errValidate := validatePort(*port); errValidate != nil {
			return errValidate
		}
	}

	appCfg, err := config.LoadFromEnv()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*cfgPath) != "" {
		appCfg.ConfigPath = config.ResolveConfigPath(*cfgPath)
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, appCfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations applied")
		return nil
	}
	return app.RunServer(ctx, appCfg, *port)
}

func validatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}
