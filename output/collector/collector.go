package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/pkg/waitsignal"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// Config holds configuration for a collector
type Config struct {
	// Limit keeps only the most recent values, 0 keeps all
	Limit int `json:"limit,omitempty"`
	// Markers records round markers instead of forwarding them
	Markers bool `json:"markers,omitempty"`
	// Optional makes the input optional for Check
	Optional bool `json:"optional,omitempty"`
}

// Validate implements operation.Validatable
func (c *Config) Validate() error {
	if c.Limit < 0 {
		return errors.WrapInvalid(fmt.Errorf("%w: limit must not be negative", errors.ErrInvalidConfig),
			"CollectorConfig", "Validate", "limit")
	}
	return nil
}

// Collector records received values
type Collector struct {
	*operation.Base

	limit   int
	markers bool
	in      *socket.InputSocket

	mu       sync.Mutex
	values   []variant.Variant
	received int
	arrived  *waitsignal.Cond
}

// New creates a collector
func New(name string, config Config, deps operation.Dependencies) (*Collector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &Collector{
		limit:   config.Limit,
		markers: config.Markers,
		arrived: waitsignal.New(waitsignal.Queue),
	}
	c.Base = operation.NewBase(name, c, deps)

	var err error
	c.in, err = c.AddInput(operation.InputSpec{Name: "in", Optional: config.Optional})
	if err != nil {
		return nil, err
	}
	c.DefineInt("limit", "Most recent values kept, 0 for all", &c.limit, operation.Min(0))
	return c, nil
}

// AcceptsMarkers implements operation.MarkerAware
func (c *Collector) AcceptsMarkers() bool { return c.markers }

// Reset implements operation.Resetter
func (c *Collector) Reset() {
	c.mu.Lock()
	c.values = nil
	c.received = 0
	c.mu.Unlock()
	c.arrived.Reset()
}

// Process records one value
func (c *Collector) Process(_ context.Context) error {
	v := c.in.Value()

	c.mu.Lock()
	c.values = append(c.values, v)
	if c.limit > 0 && len(c.values) > c.limit {
		c.values = c.values[len(c.values)-c.limit:]
	}
	c.received++
	c.mu.Unlock()

	c.arrived.SignalOne()
	return nil
}

// Values returns a snapshot of the kept values
func (c *Collector) Values() []variant.Variant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]variant.Variant(nil), c.values...)
}

// Received returns the number of values received since the last reset
func (c *Collector) Received() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received
}

// WaitFor blocks until at least n values have been received or timeout
// elapses. A negative timeout waits forever.
func (c *Collector) WaitFor(n int, timeout time.Duration) bool {
	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		if c.Received() >= n {
			return true
		}
		wait := time.Duration(-1)
		if timeout >= 0 {
			wait = time.Until(deadline)
			if wait <= 0 {
				return false
			}
		}
		c.arrived.Wait(wait)
	}
}

// NewOperation is the factory for "collector"
func NewOperation(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	var config Config
	if err := operation.SafeUnmarshal(raw, &config); err != nil {
		return nil, errors.Wrap(err, "Collector", "NewOperation", "config")
	}
	return New(name, config, deps)
}

// Register registers the collector with the given registry
func Register(registry *operation.Registry) error {
	return registry.RegisterFactory(&operation.Registration{
		Name:        "collector",
		Kind:        operation.KindOutput,
		Description: "Keeps received values in memory",
		Version:     "1.0.0",
		Factory:     NewOperation,
	})
}
