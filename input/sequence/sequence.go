package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// Config holds configuration for a sequence source. Values use the variant
// document form: plain JSON values are inferred, {"type": ..., "value": ...}
// selects a registered type.
type Config struct {
	Values   []any  `json:"values"`
	Repeat   int    `json:"repeat,omitempty"`
	Burst    int    `json:"burst,omitempty"`
	Interval string `json:"interval,omitempty"`
}

// Validate implements operation.Validatable
func (c *Config) Validate() error {
	if len(c.Values) == 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: values", errors.ErrMissingConfig), "SequenceConfig", "Validate", "values")
	}
	if c.Repeat < 0 || c.Burst < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: repeat and burst must not be negative", errors.ErrInvalidConfig),
			"SequenceConfig", "Validate", "counts")
	}
	if c.Interval != "" {
		if _, err := time.ParseDuration(c.Interval); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: interval: %v", errors.ErrInvalidConfig, err),
				"SequenceConfig", "Validate", "interval")
		}
	}
	return nil
}

// Source emits values in order. With burst N every N values are framed by
// round start and end markers.
type Source struct {
	*operation.Base

	values   []variant.Variant
	repeat   int
	burst    int
	interval time.Duration

	out  *socket.OutputSocket
	pass int
	next int
}

// New creates a sequence source from already decoded values
func New(name string, values []variant.Variant, repeat, burst int, interval time.Duration,
	deps operation.Dependencies) (*Source, error) {
	if len(values) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Sequence", "New", "values")
	}
	if repeat == 0 {
		repeat = 1
	}

	s := &Source{values: values, repeat: repeat, burst: burst, interval: interval}
	s.Base = operation.NewBase(name, s, deps)

	var err error
	if s.out, err = s.AddOutput(operation.OutputSpec{Name: "out"}); err != nil {
		return nil, err
	}

	s.DefineInt("repeat", "Passes over the values", &s.repeat, operation.Min(1), operation.Protected())
	s.DefineInt("burst", "Values per marker-framed round, 0 for none", &s.burst, operation.Min(0), operation.Protected())
	s.DefineDuration("interval", "Delay between values", &s.interval)
	return s, nil
}

// Reset implements operation.Resetter
func (s *Source) Reset() {
	s.pass = 0
	s.next = 0
}

// Process emits the next value, opening or closing a burst as needed
func (s *Source) Process(ctx context.Context) error {
	if s.pass >= s.repeat {
		return operation.ErrFinished
	}

	if s.interval > 0 {
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	framed := s.burst > 0
	if framed && s.next%s.burst == 0 {
		if err := s.out.StartMany(); err != nil {
			return err
		}
	}

	if err := s.out.Emit(s.values[s.next]); err != nil {
		return err
	}
	s.next++

	if framed && (s.next%s.burst == 0 || s.next == len(s.values)) {
		if err := s.out.EndMany(); err != nil {
			return err
		}
	}

	if s.next == len(s.values) {
		s.next = 0
		s.pass++
	}
	return nil
}

// NewOperation is the factory for "sequence"
func NewOperation(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	var config Config
	if err := operation.SafeUnmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, "Sequence", "NewOperation", "config")
	}

	types := deps.GetTypes()
	values := make([]variant.Variant, 0, len(config.Values))
	for i, raw := range config.Values {
		v, err := types.DecodeValue(raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "Sequence", "NewOperation", fmt.Sprintf("value %d", i))
		}
		values = append(values, v)
	}

	var interval time.Duration
	if config.Interval != "" {
		interval, _ = time.ParseDuration(config.Interval)
	}
	return New(name, values, config.Repeat, config.Burst, interval, deps)
}

// Register registers the sequence source with the given registry
func Register(registry *operation.Registry) error {
	return registry.RegisterFactory(&operation.Registration{
		Name:        "sequence",
		Kind:        operation.KindInput,
		Description: "Emits a configured list of values, optionally in marker-framed bursts",
		Version:     "1.0.0",
		Factory:     NewOperation,
	})
}
