package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/usagedeck/usagedeck/internal/aggregator"
	"github.com/usagedeck/usagedeck/internal/alerts"
	"github.com/usagedeck/usagedeck/internal/api"
	"github.com/usagedeck/usagedeck/internal/config"
	"github.com/usagedeck/usagedeck/internal/history"
	"github.com/usagedeck/usagedeck/internal/logging"
	"github.com/usagedeck/usagedeck/internal/metrics"
	"github.com/usagedeck/usagedeck/internal/proxy"
	"github.com/usagedeck/usagedeck/internal/telegram"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s", "server", "run"},
	Short:   "Start the UsageDeck server",
	Long: `Start the UsageDeck server.

The server exposes the live usage aggregation endpoint, the snapshot
history endpoints, health, and Prometheus metrics. When a schedule
interval is configured, aggregation cycles also run periodically so
snapshots accumulate without inbound traffic.

Example:
  usagedeck serve --config config.yaml`,
	RunE: runServe,
}

var serveFlags struct {
	Host    string
	Port    int
	Timeout time.Duration
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.Host, "host", "", "Server host (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.Port, "port", 0, "Server port (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.Timeout, "timeout", envDuration("SHUTDOWN_TIMEOUT", 30*time.Second), "Shutdown timeout")

	RootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if globalFlags.Verbose {
		log.Println("Starting UsageDeck server...")
		log.Printf("Config path: %s", globalFlags.Config)
	}

	loader := config.NewLoader(globalFlags.Config)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if serveFlags.Host != "" {
		cfg.Server.Host = serveFlags.Host
	}
	if serveFlags.Port != 0 {
		cfg.Server.HTTPPort = serveFlags.Port
	}

	logger := logging.NewLogger(logging.WithLevel(logging.LogLevel(cfg.Server.LogLevel)))
	m := metrics.NewMetrics("usagedeck")

	proxyClient := proxy.NewClient(cfg.Proxy.Endpoint, cfg.Proxy.ManagementKey, cfg.Proxy.CallTimeout, logger)
	if !proxyClient.Configured() {
		logger.Warn("management proxy not configured, usage endpoint will report 503")
	}

	var store *history.Store
	var recorder *history.Recorder
	if cfg.History.Enabled {
		store, err = history.NewStore(cfg.History.DBPath, logger)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		recorder = history.NewRecorder(store, cfg.History.Retention(), cfg.History.QueueSize, logger, m)
	}
	assembler := history.NewAssembler(store)

	// Built whenever Telegram credentials exist so a reload can toggle
	// alerting without a restart. Credential changes still need one.
	var alertSvc *alerts.Service
	if cfg.Alerts.Telegram.BotToken != "" && cfg.Alerts.Telegram.ChatID != 0 {
		notifier := telegram.NewNotifier(cfg.Alerts.Telegram.BotToken, cfg.Alerts.Telegram.ChatID)
		alertSvc = alerts.NewService(notifier, cfg.Alerts.DedupWindow, cfg.Alerts.Enabled, logger, m)
	}

	svc := aggregator.NewService(proxyClient, recorderOrNil(recorder), alerterOrNil(alertSvc), logger, m, aggregator.Options{
		HiddenAccounts: cfg.Aggregator.HiddenAccounts,
		CallTimeout:    cfg.Proxy.CallTimeout,
		ScheduleEvery:  cfg.Aggregator.ScheduleEvery,
	})
	svc.Start()

	// Hot-reload pushes the hidden-accounts set and the alert toggle into
	// the running components; a config edit that changes ports or the
	// store path needs a restart.
	loader.SetOnChange(func(next *config.Config) {
		svc.SetHiddenAccounts(next.Aggregator.HiddenAccounts)
		if alertSvc != nil {
			alertSvc.SetEnabled(next.Alerts.Enabled)
		}
		logger.Info("configuration reloaded",
			"hidden_accounts", len(next.Aggregator.HiddenAccounts),
			"alerts_enabled", next.Alerts.Enabled)
	})
	if err := loader.StartWatcher(); err != nil {
		logger.Warn("config watcher unavailable", "error", err.Error())
	}
	defer loader.StopWatcher()

	server := api.NewServer(cfg.Server, cfg.API, svc, assembler, m, logger)

	setupGracefulShutdown(server, recorder, store, serveFlags.Timeout)

	log.Printf("Starting UsageDeck HTTP server on %s:%d", cfg.Server.Host, cfg.Server.HTTPPort)
	if cfg.History.Enabled {
		log.Printf("Snapshot store: %s (WAL mode, %d day retention)", cfg.History.DBPath, cfg.History.RetentionDays)
	}

	return server.Run()
}

// recorderOrNil keeps a typed nil out of the service's interface field.
func recorderOrNil(r *history.Recorder) aggregator.Recorder {
	if r == nil {
		return nil
	}
	return r
}

func alerterOrNil(a *alerts.Service) aggregator.Alerter {
	if a == nil {
		return nil
	}
	return a
}

// setupGracefulShutdown handles graceful shutdown of all components
func setupGracefulShutdown(server *api.Server, recorder *history.Recorder, store *history.Store, timeout time.Duration) {
	sigChan := api.SetupSignalHandler()

	go func() {
		sig := api.WaitForSignal(sigChan)
		log.Printf("Received signal: %v", sig)

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		log.Println("Shutting down API server...")
		if err := server.Shutdown(ctx); err != nil {
			log.Printf("Error during server shutdown: %v", err)
		}

		if recorder != nil {
			recorder.Close()
		}
		if store != nil {
			if err := store.Close(); err != nil {
				log.Printf("Error closing snapshot store: %v", err)
			}
		}

		log.Println("Graceful shutdown completed")
		os.Exit(0)
	}()
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if parsed, err := time.ParseDuration(value); err == nil {
		return parsed
	}
	return fallback
}
