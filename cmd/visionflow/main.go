// Package main implements the visionflow command. It loads a graph document,
// builds the engine and runs it while serving metrics and health.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/visionflow/config"
	"github.com/c360/visionflow/engine"
	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/natsclient"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/opregistry"
	"github.com/c360/visionflow/pkg/retry"
	"github.com/c360/visionflow/variant"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "visionflow"
)

const natsConnectTimeout = 10 * time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		cancel()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	cliCfg, err := parseFlags(args)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(stdout, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}

	logger := setupLogger(stdout, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	logger.Info("Starting visionflow",
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	graph, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	registry, err := opregistry.NewRegistry()
	if err != nil {
		return fmt.Errorf("register operations: %w", err)
	}

	if cliCfg.Validate {
		return validateGraph(graph, registry, logger, stdout)
	}

	metricsRegistry := metric.NewMetricsRegistry()
	metricsRegistry.CoreMetrics().RecordBuildInfo(Version)

	var opts []engine.Option
	if cliCfg.NATSURL != "" {
		client, err := connectToNATS(ctx, cliCfg.NATSURL, logger, metricsRegistry.CoreMetrics())
		if err != nil {
			return err
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}()
		opts = append(opts, engine.WithPublisher(client))
	}

	e, err := engine.Build(graph, registry, operation.Dependencies{
		Logger:          logger,
		MetricsRegistry: metricsRegistry,
		Types:           variant.NewRegistry(),
	}, opts...)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if cliCfg.MetricsPort > 0 {
		srv := metric.NewServer(cliCfg.MetricsPort, cliCfg.MetricsPath, metricsRegistry, func() (any, bool) {
			st := e.Health()
			return st, !st.IsUnhealthy()
		})
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer func() { _ = srv.Stop() }()
		logger.Info("Serving metrics", "address", srv.Address())
	}

	runCtx := ctx
	if cliCfg.RunFor > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cliCfg.RunFor)
		defer cancel()
	}

	if err := e.Run(runCtx); err != nil {
		return fmt.Errorf("engine run %s: %w", e.RunID(), err)
	}
	logger.Info("visionflow finished", "run_id", e.RunID())
	return nil
}

// validateGraph builds the graph without running it and prints its analysis
func validateGraph(graph *config.Graph, registry *operation.Registry, logger *slog.Logger, w io.Writer) error {
	e, err := engine.Build(graph, registry, operation.Dependencies{Logger: logger})
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}
	if err := e.Check(false); err != nil {
		return fmt.Errorf("check engine: %w", err)
	}
	result, err := e.Analyze()
	if err != nil {
		return fmt.Errorf("analyze graph: %w", err)
	}
	_, _ = fmt.Fprint(w, result.String())
	logger.Info("Configuration is valid", "status", result.ValidationStatus)
	return nil
}

// connectToNATS creates the event client and waits for the connection
func connectToNATS(ctx context.Context, url string, logger *slog.Logger, core *metric.Metrics) (*natsclient.Client, error) {
	client, err := natsclient.NewClient(url,
		natsclient.WithClientName(appName),
		natsclient.WithLogger(logger),
		natsclient.WithStatusCallback(core.RecordNATSStatus),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	connCtx, cancel := context.WithTimeout(ctx, natsConnectTimeout)
	defer cancel()
	err = retry.Do(connCtx, retry.Startup(), func() error {
		return client.Connect(connCtx)
	})
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}
