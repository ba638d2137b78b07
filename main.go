// cpmgmt is a command-line client for the Check Point management web API.
//
// It logs in, runs commands or aggregated queries, waits for asynchronous
// tasks and logs out, optionally keeping a credential-redacted audit log of
// every call.
//
// Usage:
//
//	cpmgmt --config config.yaml call add-host '{"name":"h1","ip-address":"10.0.0.1"}'
//	cpmgmt --config config.yaml query show-hosts --details-level full
//	cpmgmt --config config.yaml apply -f playbook.yaml [--watch]
//
// Configuration is provided via YAML file specifying:
//   - Management server details (host, port, domain, certificate, proxy)
//   - Session settings (user, password, timeout, wait-for-task)
//   - Audit log, metrics server and OpenTelemetry settings
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fjacquet/cpmgmt/internal/logging"
	"github.com/fjacquet/cpmgmt/internal/mgmt"
	"github.com/fjacquet/cpmgmt/internal/models"
	"github.com/fjacquet/cpmgmt/internal/telemetry"
	"github.com/fjacquet/cpmgmt/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
)

const (
	programName     = "cpmgmt"         // Application name
	programVersion  = "1.0.0"          // Reported to OpenTelemetry
	shutdownTimeout = 10 * time.Second // Maximum time to wait for graceful shutdown
	telemetryInit   = 10 * time.Second // Maximum time to set up the OTLP exporter
)

var (
	configFile string
	debug      bool
)

// app holds what every subcommand needs: the validated configuration, the
// metrics registry and the tracer provider.
type app struct {
	cfg              models.Config
	registry         *prometheus.Registry
	metrics          *mgmt.Metrics
	telemetryManager *telemetry.Manager // nil if disabled
	tracerProvider   trace.TracerProvider
}

// newApp creates the registry and client metrics for cfg and starts
// OpenTelemetry when enabled. Telemetry failures are logged and tracing is
// disabled.
func newApp(ctx context.Context, cfg models.Config) (*app, error) {
	registry := prometheus.NewRegistry()
	metrics, err := mgmt.NewMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	a := &app{
		cfg:      cfg,
		registry: registry,
		metrics:  metrics,
	}

	if cfg.IsOTelEnabled() {
		a.telemetryManager = telemetry.NewManager(telemetry.Config{
			Enabled:          cfg.OpenTelemetry.Enabled,
			Endpoint:         cfg.OpenTelemetry.Endpoint,
			Insecure:         cfg.OpenTelemetry.Insecure,
			SamplingRate:     cfg.OpenTelemetry.SamplingRate,
			ServiceName:      programName,
			ServiceVersion:   programVersion,
			ManagementServer: cfg.MgmtServer.Host,
		})

		initCtx, cancel := context.WithTimeout(ctx, telemetryInit)
		defer cancel()
		if err := a.telemetryManager.Initialize(initCtx); err != nil {
			// Log warning but continue - telemetry manager handles graceful degradation
			log.Warnf("Failed to initialize OpenTelemetry: %v. Continuing without tracing.", err)
		}
		if a.telemetryManager.IsEnabled() {
			a.tracerProvider = a.telemetryManager.TracerProvider()
		}
	}

	return a, nil
}

// newClient creates a client for cfg wired to the app's metrics and tracing.
func (a *app) newClient(cfg models.Config, opts ...mgmt.Option) (*mgmt.Client, error) {
	opts = append([]mgmt.Option{
		mgmt.WithMetrics(a.metrics),
		mgmt.WithTracerProvider(a.tracerProvider),
	}, opts...)
	return mgmt.New(cfg, opts...)
}

// withSession logs in with the credentials of cfg, runs fn and logs out.
// The audit log, when configured, is flushed after logout so it holds the
// whole session.
func (a *app) withSession(ctx context.Context, cfg models.Config, fn func(ctx context.Context, client *mgmt.Client) error) error {
	password, err := resolvePassword(cfg)
	if err != nil {
		return err
	}

	client, err := a.newClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	defer func() {
		if err := client.Close(ctx); err != nil {
			log.Debugf("Closing client: %v", err)
		}
	}()

	log.Debugf("Client: %s", client)

	runErr := client.WithSession(ctx, cfg.Session.User, password, func(ctx context.Context) error {
		return fn(ctx, client)
	})

	if client.AuditLog().Enabled() {
		path := client.AuditLog().Path()
		if err := client.FlushAuditLog(); err != nil {
			log.Errorf("Failed to write audit log: %v", err)
		} else {
			log.Infof("Audit log written to %s", path)
		}
	}

	return runErr
}

// writeTextfile saves the registry in the Prometheus textfile format when
// server.metricsTextfile is set, for node_exporter's textfile collector.
func (a *app) writeTextfile() {
	path := a.cfg.Server.MetricsTextfile
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		log.Errorf("Failed to write metrics textfile: %v", err)
	}
}

// shutdown flushes pending spans.
func (a *app) shutdown() {
	if a.telemetryManager == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Debug("Shutting down telemetry...")
	if err := a.telemetryManager.Shutdown(ctx); err != nil {
		log.Warnf("Telemetry shutdown warning: %v", err)
	}
}

// validateConfig checks if the configuration file exists, loads it, and validates its contents.
//
// Parameters:
//   - configPath: Path to the YAML configuration file
//
// Returns:
//   - Pointer to validated Config struct with defaults applied
//   - Error if file doesn't exist, cannot be parsed, or validation fails
func validateConfig(configPath string) (*models.Config, error) {
	if !utils.FileExists(configPath) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	var cfg models.Config
	if err := utils.ReadFile(&cfg, configPath); err != nil {
		return nil, err
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setupLogging tees logs to server.logName when set.
// If debug mode is enabled, sets the log level to DEBUG for verbose output.
//
// Returns an error if log file initialization fails.
func setupLogging(cfg models.Config, debugMode bool) error {
	if cfg.Server.LogName != "" {
		if err := logging.PrepareLogs(cfg.Server.LogName); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
	}

	logging.SetDebug(debugMode)
	if debugMode {
		log.Debug("Debug mode enabled")
	}

	return nil
}

// loadApp is the common prologue of every subcommand.
func loadApp(ctx context.Context) (*app, error) {
	cfg, err := validateConfig(configFile)
	if err != nil {
		return nil, err
	}

	if err := setupLogging(*cfg, debug); err != nil {
		return nil, err
	}

	log.Debugf("Management server: %s", cfg.GetMgmtBaseURL())
	log.Debugf("User: %s, password: %s", cfg.Session.User, cfg.MaskPassword())

	return newApp(ctx, *cfg)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Client for the Check Point management API",
		Long:          "cpmgmt runs management API commands, aggregated queries and playbooks within a logged-in session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file (required)")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "Enable debug mode")
	_ = rootCmd.MarkPersistentFlagRequired("config")

	rootCmd.AddCommand(newCallCmd(), newQueryCmd(), newApplyCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
