// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/ManuGH/micgw/internal/api"
	"github.com/ManuGH/micgw/internal/config"
	"github.com/ManuGH/micgw/internal/daemon"
	"github.com/ManuGH/micgw/internal/health"
	mglog "github.com/ManuGH/micgw/internal/log"
	"github.com/ManuGH/micgw/internal/media"
	"github.com/ManuGH/micgw/internal/permission"
	"github.com/ManuGH/micgw/internal/recorder"
	"github.com/ManuGH/micgw/internal/session"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	version   = "v1.0.0"
	commit    = "none"
	buildDate = "unknown"
)

// maskURL removes user info from a URL string for safe logging.
func maskURL(rawURL string) string {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url-redacted"
	}
	parsedURL.User = nil
	return parsedURL.String()
}

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Safe defaults until config is loaded
	mglog.Configure(mglog.Config{
		Level:   "info",
		Service: "micgw",
		Version: version,
	})

	logger := mglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	// Re-configure logger with loaded configuration
	mglog.Configure(mglog.Config{
		Level:   cfg.LogLevel,
		Service: cfg.LogService,
		Version: version,
	})

	logger.Info().
		Str("event", "config.loaded").
		Str("listen", cfg.ListenAddr).
		Str("recorder", maskURL(cfg.RecorderBase)).
		Str("permission_broker", maskURL(cfg.PermissionBase)).
		Int("path_mappings", len(cfg.PathMappings)).
		Msg("configuration loaded")

	recorderClient := recorder.New(cfg.RecorderBase, recorder.Options{
		ProbeTimeout: cfg.RecorderProbeTimeout,
		CallTimeout:  cfg.RecorderCallTimeout,
	})
	permissionClient := permission.New(cfg.PermissionBase, permission.Options{
		Timeout: cfg.PermissionTimeout,
	})
	resolver := media.NewResolver(cfg.PathMappings, cfg.MediaBase)

	controller := session.New(session.Deps{
		Permission: permissionClient,
		Recorder:   recorderClient,
		Playback:   resolver,
		Logger:     mglog.WithComponent("session"),
	})
	controller.Init(ctx)

	hm := health.NewManager(version)
	hm.RegisterChecker(health.NewRecorderChecker(func(ctx context.Context) error {
		_, err := recorderClient.Recording(ctx)
		return err
	}))

	server := api.New(cfg, controller, resolver, hm)

	deps := daemon.Deps{
		Logger:     mglog.WithComponent("daemon"),
		APIHandler: server.Handler(),
	}
	if cfg.MetricsEnabled {
		deps.MetricsAddr = cfg.MetricsAddr
		deps.MetricsHandler = promhttp.Handler()
	}

	manager, err := daemon.NewManager(cfg.ListenAddr, config.ParseServerConfig(), deps)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.init_failed").
			Msg("failed to create daemon manager")
	}

	if err := manager.Start(ctx); err != nil {
		logger.Error().
			Err(err).
			Str("event", "daemon.stopped_with_error").
			Msg("daemon stopped with error")
		os.Exit(1)
	}

	logger.Info().
		Str("event", "daemon.stopped").
		Msg("daemon stopped cleanly")
}
