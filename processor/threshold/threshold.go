package threshold

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// Config holds configuration for the threshold processor
type Config struct {
	Level  int  `json:"level"`
	Invert bool `json:"invert,omitempty"`
}

// Validate implements operation.Validatable
func (c *Config) Validate() error {
	if c.Level < 0 || c.Level > 255 {
		return errors.WrapInvalid(fmt.Errorf("%w: level %d outside 0..255", errors.ErrInvalidConfig, c.Level),
			"ThresholdConfig", "Validate", "level")
	}
	return nil
}

// Processor binarizes images
type Processor struct {
	*operation.Base

	level  int
	invert bool

	in  *socket.InputSocket
	out *socket.OutputSocket
}

// New creates a threshold processor
func New(name string, config Config, deps operation.Dependencies) (*Processor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	p := &Processor{level: config.Level, invert: config.Invert}
	p.Base = operation.NewBase(name, p, deps)

	var err error
	if p.in, err = p.AddInput(operation.InputSpec{Name: "image"}); err != nil {
		return nil, err
	}
	if p.out, err = p.AddOutput(operation.OutputSpec{Name: "image"}); err != nil {
		return nil, err
	}

	p.DefineInt("level", "Samples above this level become white", &p.level, operation.Min(0), operation.Max(255))
	p.DefineBool("invert", "Swap black and white", &p.invert)
	return p, nil
}

// Process thresholds one image
func (p *Processor) Process(_ context.Context) error {
	v := p.in.Value()
	if err := variant.Expect(v, variant.TagImage); err != nil {
		return errors.WrapFatal(err, p.Name(), "Process", "read image")
	}
	src, _ := variant.As[*variant.Image](v)

	dst, err := variant.NewImage(src.Width, src.Height, src.Channels)
	if err != nil {
		return errors.WrapFatal(err, p.Name(), "Process", "allocate image")
	}

	hi, lo := byte(255), byte(0)
	if p.invert {
		hi, lo = lo, hi
	}
	level := byte(p.level)
	for i, s := range src.Pix {
		if s > level {
			dst.Pix[i] = hi
		} else {
			dst.Pix[i] = lo
		}
	}
	return p.out.Emit(variant.FromImage(dst))
}

// NewOperation is the factory for "threshold"
func NewOperation(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	config := Config{Level: 128}
	if err := operation.SafeUnmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, "Threshold", "NewOperation", "config")
	}
	return New(name, config, deps)
}

// Register registers the threshold processor with the given registry
func Register(registry *operation.Registry) error {
	return registry.RegisterFactory(&operation.Registration{
		Name:        "threshold",
		Kind:        operation.KindProcessor,
		Description: "Binarizes images at a configurable level",
		Version:     "1.0.0",
		Factory:     NewOperation,
	})
}
