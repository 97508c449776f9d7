// Package opregistry registers the built-in visionflow operations.
package opregistry

import (
	"errors"

	pkgerrors "github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/flowcontrol"
	"github.com/c360/visionflow/input/framesource"
	"github.com/c360/visionflow/input/sequence"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/output/collector"
	"github.com/c360/visionflow/processor/threshold"
)

// Register registers every built-in operation with the provided registry:
//
// Inputs:
//   - frame-source (synthetic camera)
//   - sequence (configured values, optionally in bursts)
//
// Processors:
//   - threshold (image binarization)
//
// Outputs:
//   - collector (in-memory sink)
//
// Flow control:
//   - group-capturer (grouped capture with defaults)
//   - object-capturer (sync-correlated capture)
func Register(registry *operation.Registry) error {
	// Nil registry is a programming error
	if registry == nil {
		return pkgerrors.WrapFatal(
			errors.New("registry cannot be nil"),
			"OperationRegistry", "Register", "registry validation")
	}

	builtins := []struct {
		what     string
		register func(*operation.Registry) error
	}{
		{"frame source input registration", framesource.Register},
		{"sequence input registration", sequence.Register},
		{"threshold processor registration", threshold.Register},
		{"collector output registration", collector.Register},
		{"flow control registration", flowcontrol.Register},
	}

	for _, b := range builtins {
		if err := b.register(registry); err != nil {
			return pkgerrors.WrapInvalid(err, "OperationRegistry", "Register", b.what)
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in operation
func NewRegistry() (*operation.Registry, error) {
	registry := operation.NewRegistry()
	if err := Register(registry); err != nil {
		return nil, err
	}
	return registry, nil
}
