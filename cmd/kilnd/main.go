package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"kiln/internal/config"
	"kiln/internal/daemon"
	"kiln/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "configuration file path")
	flag.Parse()

	// Local deployments keep secrets in a .env next to the daemon.
	_ = godotenv.Load()

	cfg, path, exists, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	applyEnvOverrides(cfg)

	logger, err := logging.New(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		return err
	}
	if exists {
		logger.Info("configuration loaded", logging.String("path", path))
	} else {
		logger.Info("no configuration file found, using defaults")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	d, err := daemon.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	d.Stop()
	logger.Info("daemon stopped")
	return nil
}

func applyEnvOverrides(cfg *config.Config) {
	if key := strings.TrimSpace(os.Getenv("KILN_DRAFT_API_KEY")); key != "" {
		cfg.Draft.APIKey = key
	}
	if bind := strings.TrimSpace(os.Getenv("KILN_API_BIND")); bind != "" {
		cfg.Paths.APIBind = bind
	}
}
