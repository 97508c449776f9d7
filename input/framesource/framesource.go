package framesource

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// Patterns
const (
	PatternGradient = "gradient"
	PatternChecker  = "checker"
	PatternSolid    = "solid"
)

// ErrFinishedFrames ends the source after max_frames
var ErrFinishedFrames = fmt.Errorf("max frames reached: %w", operation.ErrFinished)

// Config holds configuration for the frame source
type Config struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Channels  int     `json:"channels"`
	FPS       float64 `json:"fps"`
	MaxFrames int     `json:"max_frames,omitempty"`
	Pattern   string  `json:"pattern,omitempty"`
}

// DefaultConfig returns a 64x48 grayscale gradient at 30 fps
func DefaultConfig() Config {
	return Config{Width: 64, Height: 48, Channels: 1, FPS: 30, Pattern: PatternGradient}
}

// Validate implements operation.Validatable
func (c *Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 || c.Width*c.Height > 4096*4096 {
		return errors.WrapInvalid(fmt.Errorf("%w: frame size %dx%d", errors.ErrInvalidConfig, c.Width, c.Height),
			"FrameSourceConfig", "Validate", "frame size")
	}
	if c.Channels != 1 && c.Channels != 3 {
		return errors.WrapInvalid(fmt.Errorf("%w: channels must be 1 or 3, got %d", errors.ErrInvalidConfig, c.Channels),
			"FrameSourceConfig", "Validate", "channels")
	}
	if c.FPS < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: fps must not be negative", errors.ErrInvalidConfig),
			"FrameSourceConfig", "Validate", "fps")
	}
	if c.MaxFrames < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: max_frames must not be negative", errors.ErrInvalidConfig),
			"FrameSourceConfig", "Validate", "max_frames")
	}
	switch c.Pattern {
	case "", PatternGradient, PatternChecker, PatternSolid:
	default:
		return errors.WrapInvalid(fmt.Errorf("%w: pattern %q", errors.ErrInvalidConfig, c.Pattern),
			"FrameSourceConfig", "Validate", "pattern")
	}
	return nil
}

// Source renders frames
type Source struct {
	*operation.Base

	config  Config
	fps     float64
	limiter *rate.Limiter

	frame *socket.OutputSocket
	index *socket.OutputSocket
	count int
}

// New creates a frame source
func New(name string, config Config, deps operation.Dependencies) (*Source, error) {
	if config.Pattern == "" {
		config.Pattern = PatternGradient
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Source{config: config, fps: config.FPS}
	s.Base = operation.NewBase(name, s, deps)

	var err error
	if s.frame, err = s.AddOutput(operation.OutputSpec{Name: "frame"}); err != nil {
		return nil, err
	}
	if s.index, err = s.AddOutput(operation.OutputSpec{Name: "index"}); err != nil {
		return nil, err
	}

	s.DefineFloat("fps", "Frames per second, 0 for unthrottled", &s.fps, operation.Min(0))
	s.DefineInt("max_frames", "Frames to emit before finishing, 0 for unlimited", &s.config.MaxFrames,
		operation.Min(0), operation.Protected())
	s.DefineString("pattern", "Rendered pattern", &s.config.Pattern,
		operation.OneOf(PatternGradient, PatternChecker, PatternSolid))
	return s, nil
}

// Frames returns the number of frames emitted since the last reset
func (s *Source) Frames() int { return s.count }

// CheckConfig implements operation.Checker
func (s *Source) CheckConfig(_ bool) error {
	return s.config.Validate()
}

// Reset implements operation.Resetter
func (s *Source) Reset() {
	s.count = 0
	s.limiter = nil
}

// Process renders and emits one frame
func (s *Source) Process(ctx context.Context) error {
	if s.config.MaxFrames > 0 && s.count >= s.config.MaxFrames {
		return ErrFinishedFrames
	}

	if err := s.throttle(ctx); err != nil {
		return err
	}

	img, err := s.render(s.count)
	if err != nil {
		return errors.WrapFatal(err, s.Name(), "Process", "render frame")
	}
	if err := s.frame.Emit(variant.FromImage(img)); err != nil {
		return err
	}
	if err := s.index.Emit(variant.Int(int64(s.count))); err != nil {
		return err
	}
	s.count++
	return nil
}

func (s *Source) throttle(ctx context.Context) error {
	if s.fps <= 0 {
		return nil
	}
	if s.limiter == nil || s.limiter.Limit() != rate.Limit(s.fps) {
		s.limiter = rate.NewLimiter(rate.Limit(s.fps), 1)
	}
	return s.limiter.Wait(ctx)
}

func (s *Source) render(n int) (*variant.Image, error) {
	c := s.config
	img, err := variant.NewImage(c.Width, c.Height, c.Channels)
	if err != nil {
		return nil, err
	}
	for y := 0; y < c.Height; y++ {
		for x := 0; x < c.Width; x++ {
			var v byte
			switch c.Pattern {
			case PatternChecker:
				if ((x/8)+(y/8)+n)%2 == 0 {
					v = 255
				}
			case PatternSolid:
				v = byte(n)
			default:
				v = byte((x*255/max(c.Width-1, 1) + n) % 256)
			}
			for ch := 0; ch < c.Channels; ch++ {
				img.Set(x, y, ch, v)
			}
		}
	}
	return img, nil
}

// NewOperation is the factory for "frame-source"
func NewOperation(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	config := DefaultConfig()
	if err := operation.SafeUnmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, "FrameSource", "NewOperation", "config")
	}
	return New(name, config, deps)
}

// Register registers the frame source with the given registry
func Register(registry *operation.Registry) error {
	return registry.RegisterFactory(&operation.Registration{
		Name:        "frame-source",
		Kind:        operation.KindInput,
		Description: "Synthetic image frames at a fixed rate",
		Version:     "1.0.0",
		Factory:     NewOperation,
	})
}
