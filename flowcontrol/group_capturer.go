package flowcontrol

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// GroupCapturerConfig configures a GroupCapturer
type GroupCapturerConfig struct {
	Inputs    int            `json:"inputs"`
	GroupSize int            `json:"group_size"`
	Defaults  map[string]any `json:"defaults,omitempty"`
	Capacity  int            `json:"capacity,omitempty"`
}

// Validate implements operation.Validatable
func (c *GroupCapturerConfig) Validate() error {
	if c.Inputs < 1 || c.Inputs > 256 {
		return errors.WrapInvalid(fmt.Errorf("%w: inputs must be 1..256, got %d", errors.ErrInvalidConfig, c.Inputs),
			"GroupCapturerConfig", "Validate", "inputs")
	}
	if c.GroupSize < 1 {
		return errors.WrapInvalid(fmt.Errorf("%w: group_size must be positive, got %d", errors.ErrInvalidConfig, c.GroupSize),
			"GroupCapturerConfig", "Validate", "group_size")
	}
	for key := range c.Defaults {
		slot, err := strconv.Atoi(key)
		if err != nil || slot < 0 || slot >= c.GroupSize {
			return errors.WrapInvalid(fmt.Errorf("%w: default slot %q outside 0..%d", errors.ErrInvalidConfig, key, c.GroupSize-1),
				"GroupCapturerConfig", "Validate", "defaults")
		}
	}
	return nil
}

// GroupCapturer assembles rows from values arriving on indexed inputs
type GroupCapturer struct {
	*operation.Base

	groupSize int
	inputs    []*socket.InputSocket
	index     map[*socket.InputSocket]int
	out       *socket.OutputSocket
	defaults  map[int]variant.Variant

	// pending[group][slot] holds values not yet emitted, oldest first
	pending map[int][][]variant.Variant
	onRow   func(Row)
}

// NewGroupCapturer creates a GroupCapturer
func NewGroupCapturer(name string, cfg GroupCapturerConfig, deps operation.Dependencies) (*GroupCapturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	types := deps.GetTypes()
	defaults := make(map[int]variant.Variant, len(cfg.Defaults))
	for key, raw := range cfg.Defaults {
		slot, _ := strconv.Atoi(key)
		v, err := types.DecodeValue(raw)
		if err != nil {
			return nil, errors.WrapInvalid(err, "GroupCapturer", "NewGroupCapturer", fmt.Sprintf("default for slot %d", slot))
		}
		defaults[slot] = v
	}

	g := &GroupCapturer{
		groupSize: cfg.GroupSize,
		index:     make(map[*socket.InputSocket]int, cfg.Inputs),
		defaults:  defaults,
		pending:   make(map[int][][]variant.Variant),
	}
	g.Base = operation.NewBase(name, g, deps)

	for i := 0; i < cfg.Inputs; i++ {
		in, err := g.AddInput(operation.InputSpec{
			Name:     fmt.Sprintf("input%d", i),
			Group:    i,
			Capacity: cfg.Capacity,
		})
		if err != nil {
			return nil, err
		}
		g.inputs = append(g.inputs, in)
		g.index[in] = i
	}

	out, err := g.AddOutput(operation.OutputSpec{Name: "row"})
	if err != nil {
		return nil, err
	}
	g.out = out
	return g, nil
}

// OnRow registers a callback invoked for every emitted row. It must be set
// before Start.
func (g *GroupCapturer) OnRow(fn func(Row)) { g.onRow = fn }

// Groups returns the number of groups spanned by the inputs
func (g *GroupCapturer) Groups() int {
	return (len(g.inputs) + g.groupSize - 1) / g.groupSize
}

// Reset drops all partially filled groups
func (g *GroupCapturer) Reset() {
	g.pending = make(map[int][][]variant.Variant)
}

// Process buffers the value of the input that fired and emits its group if
// it is complete.
func (g *GroupCapturer) Process(_ context.Context) error {
	for _, in := range g.inputs {
		if !in.HasValue() {
			continue
		}
		if err := g.accept(g.index[in], in.Value()); err != nil {
			return err
		}
	}
	return nil
}

func (g *GroupCapturer) accept(idx int, v variant.Variant) error {
	group, slot := idx/g.groupSize, idx%g.groupSize

	slots, ok := g.pending[group]
	if !ok {
		slots = make([][]variant.Variant, g.groupSize)
		g.pending[group] = slots
	}
	slots[slot] = append(slots[slot], v)

	values := make([]variant.Variant, g.groupSize)
	for s := range slots {
		switch {
		case len(slots[s]) > 0:
			values[s] = slots[s][0]
		default:
			def, ok := g.defaults[s]
			if !ok {
				return nil
			}
			values[s] = def
		}
	}

	for s := range slots {
		if len(slots[s]) > 0 {
			slots[s] = slots[s][1:]
		}
	}

	row := Row{Group: group, Values: values}
	g.Logger().Debug("Group complete", "group", group)
	if g.onRow != nil {
		g.onRow(row)
	}
	return g.out.Emit(variant.New(TagRow, &row))
}

func groupCapturerFactory(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	var cfg GroupCapturerConfig
	if err := operation.SafeUnmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "GroupCapturer", "Factory", "config")
	}
	return NewGroupCapturer(name, cfg, deps)
}
