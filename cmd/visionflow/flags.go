package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	Debug       bool
	NATSURL     string
	MetricsPort int
	MetricsPath string
	RunFor      time.Duration
	ShowVersion bool
	ShowHelp    bool
	Validate    bool
}

func parseFlags(args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)

	// Define flags with environment variable fallback
	fs.StringVar(&cfg.ConfigPath, "config",
		getEnv("VISIONFLOW_CONFIG", "configs/example.yaml"),
		"Path to graph document, .yaml or .json (env: VISIONFLOW_CONFIG)")

	fs.StringVar(&cfg.ConfigPath, "c",
		getEnv("VISIONFLOW_CONFIG", "configs/example.yaml"),
		"Path to graph document, .yaml or .json (env: VISIONFLOW_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv("VISIONFLOW_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: VISIONFLOW_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv("VISIONFLOW_LOG_FORMAT", "json"),
		"Log format: json, text (env: VISIONFLOW_LOG_FORMAT)")

	fs.BoolVar(&cfg.Debug, "debug",
		getEnvBool("VISIONFLOW_DEBUG", false),
		"Enable debug logging (env: VISIONFLOW_DEBUG)")

	fs.StringVar(&cfg.NATSURL, "nats-url",
		getEnv("VISIONFLOW_NATS_URL", ""),
		"NATS server for state events, empty to disable (env: VISIONFLOW_NATS_URL)")

	fs.IntVar(&cfg.MetricsPort, "metrics-port",
		getEnvInt("VISIONFLOW_METRICS_PORT", 9090),
		"Metrics and health port, 0 to disable (env: VISIONFLOW_METRICS_PORT)")

	fs.StringVar(&cfg.MetricsPath, "metrics-path",
		getEnv("VISIONFLOW_METRICS_PATH", "/metrics"),
		"Metrics endpoint path (env: VISIONFLOW_METRICS_PATH)")

	fs.DurationVar(&cfg.RunFor, "run-for",
		getEnvDuration("VISIONFLOW_RUN_FOR", 0),
		"Stop after this long, 0 to run until a signal or until sources finish (env: VISIONFLOW_RUN_FOR)")

	fs.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	fs.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	fs.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	fs.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate the graph, print its analysis and exit")

	fs.Usage = func() { printDetailedHelp(fs) }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if _, err := os.Stat(cfg.ConfigPath); err != nil {
		return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}
	if cfg.MetricsPort < 0 || cfg.MetricsPort > 65535 {
		return fmt.Errorf("invalid metrics port: %d", cfg.MetricsPort)
	}
	if cfg.RunFor < 0 {
		return fmt.Errorf("invalid run-for: %s", cfg.RunFor)
	}
	return nil
}

func printDetailedHelp(fs *flag.FlagSet) {
	_, _ = fmt.Fprintf(os.Stderr, `%s - machine-vision dataflow engine

Usage: %s [options]

Options:
`, appName, os.Args[0])
	fs.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Run a graph until its sources finish or a signal arrives
  %s --config=graphs/camera.yaml

  # Check a graph and print its connectivity analysis
  %s --config=graphs/camera.yaml --validate

  # Publish state events and run for one minute
  export VISIONFLOW_NATS_URL=nats://localhost:4222
  %s --run-for=1m --log-format=text

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

// Environment variable helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
