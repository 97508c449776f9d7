package operation

import (
	"log/slog"

	"github.com/c360/visionflow/metric"
	"github.com/c360/visionflow/variant"
)

// Dependencies provides the external dependencies an operation factory may
// use. Every field may be nil.
type Dependencies struct {
	Logger          *slog.Logger            // Structured logger, defaults to slog.Default()
	MetricsRegistry *metric.MetricsRegistry // Queue metrics for input sockets
	Types           *variant.Registry       // Variant decoders for configured values
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with operation context
func (d *Dependencies) GetLoggerWithComponent(name string) *slog.Logger {
	return d.GetLogger().With("operation", name)
}

// GetTypes returns the configured variant registry or one with the builtin
// decoders.
func (d *Dependencies) GetTypes() *variant.Registry {
	if d.Types != nil {
		return d.Types
	}
	return variant.NewRegistry()
}
