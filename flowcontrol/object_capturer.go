package flowcontrol

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/operation"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

// List shapes
const (
	ListPerInput = "per-input"
	ListPerCycle = "per-cycle"
)

// Round completion modes
const (
	CompleteOnNextSync  = "next-sync"
	CompleteOnEndMarker = "end-marker"
)

const (
	syncGroup = 1
	dataGroup = 0
)

// ObjectCapturerConfig configures an ObjectCapturer
type ObjectCapturerConfig struct {
	Inputs     int    `json:"inputs"`
	ListMode   string `json:"list_mode,omitempty"`
	Completion string `json:"completion,omitempty"`
	Capacity   int    `json:"capacity,omitempty"`
}

// Validate implements operation.Validatable
func (c *ObjectCapturerConfig) Validate() error {
	if c.Inputs < 1 || c.Inputs > 64 {
		return errors.WrapInvalid(fmt.Errorf("%w: inputs must be 1..64, got %d", errors.ErrInvalidConfig, c.Inputs),
			"ObjectCapturerConfig", "Validate", "inputs")
	}
	if c.ListMode == "" {
		c.ListMode = ListPerInput
	}
	if c.Completion == "" {
		c.Completion = CompleteOnNextSync
	}
	return validateModes(c.ListMode, c.Completion)
}

func validateModes(listMode, completion string) error {
	if listMode != ListPerInput && listMode != ListPerCycle {
		return errors.WrapInvalid(fmt.Errorf("%w: list_mode %q", errors.ErrInvalidConfig, listMode),
			"ObjectCapturer", "validateModes", "list_mode")
	}
	if completion != CompleteOnNextSync && completion != CompleteOnEndMarker {
		return errors.WrapInvalid(fmt.Errorf("%w: completion %q", errors.ErrInvalidConfig, completion),
			"ObjectCapturer", "validateModes", "completion")
	}
	return nil
}

// ObjectCapturer correlates data values with the sync value of their round
type ObjectCapturer struct {
	*operation.Base

	listMode   string
	completion string

	data    []*socket.InputSocket
	sync    *socket.InputSocket
	syncOut *socket.OutputSocket
	objects *socket.OutputSocket

	// next-sync: the open round
	open    bool
	tag     variant.Variant
	current [][]variant.Variant

	// end-marker: sync values and framed rounds waiting for each other
	framing bool
	tags    []variant.Variant
	rounds  [][][]variant.Variant

	orphaned  uint64
	onCapture func(Capture)
}

// NewObjectCapturer creates an ObjectCapturer
func NewObjectCapturer(name string, cfg ObjectCapturerConfig, deps operation.Dependencies) (*ObjectCapturer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &ObjectCapturer{listMode: cfg.ListMode, completion: cfg.Completion}
	o.Base = operation.NewBase(name, o, deps)

	for i := 0; i < cfg.Inputs; i++ {
		in, err := o.AddInput(operation.InputSpec{
			Name:     fmt.Sprintf("input%d", i),
			Group:    dataGroup,
			Capacity: cfg.Capacity,
		})
		if err != nil {
			return nil, err
		}
		o.data = append(o.data, in)
	}

	var err error
	o.sync, err = o.AddInput(operation.InputSpec{
		Name:     "sync",
		Optional: true,
		Group:    syncGroup,
		Capacity: cfg.Capacity,
	})
	if err != nil {
		return nil, err
	}
	if o.syncOut, err = o.AddOutput(operation.OutputSpec{Name: "sync"}); err != nil {
		return nil, err
	}
	if o.objects, err = o.AddOutput(operation.OutputSpec{Name: "objects"}); err != nil {
		return nil, err
	}

	o.DefineString("list_mode", "Shape of emitted lists (per-input or per-cycle)", &o.listMode,
		operation.OneOf(ListPerInput, ListPerCycle), operation.Protected())
	o.DefineString("completion", "What closes a round (next-sync or end-marker)", &o.completion,
		operation.OneOf(CompleteOnNextSync, CompleteOnEndMarker), operation.Protected())
	return o, nil
}

// OnCapture registers a callback invoked for every emission. It must be set
// before Start.
func (o *ObjectCapturer) OnCapture(fn func(Capture)) { o.onCapture = fn }

// AcceptsMarkers implements operation.MarkerAware
func (o *ObjectCapturer) AcceptsMarkers() bool { return true }

// CheckConfig implements operation.Checker
func (o *ObjectCapturer) CheckConfig(_ bool) error {
	return validateModes(o.listMode, o.completion)
}

// Reset drops every open round and queued sync value
func (o *ObjectCapturer) Reset() {
	o.open = false
	o.tag = variant.Variant{}
	o.current = nil
	o.framing = false
	o.tags = nil
	o.rounds = nil
	o.orphaned = 0
}

// Orphaned returns the number of data cycles that arrived outside any round
func (o *ObjectCapturer) Orphaned() uint64 { return o.orphaned }

// Process handles one sync value or one data cycle
func (o *ObjectCapturer) Process(_ context.Context) error {
	if o.sync.HasValue() {
		v := o.sync.Value()
		if v.IsMarker() {
			return nil
		}
		return o.onSync(v)
	}

	cycle := make([]variant.Variant, len(o.data))
	for i, in := range o.data {
		cycle[i] = in.Value()
	}
	marker, err := cycleMarker(cycle)
	if err != nil {
		return errors.WrapFatal(err, o.Name(), "Process", "data cycle")
	}

	if !o.sync.IsConnected() {
		return o.forward(cycle, marker)
	}
	if o.completion == CompleteOnEndMarker {
		return o.onFramed(cycle, marker)
	}
	if marker != variant.TagInvalid {
		return nil
	}
	if !o.open {
		o.orphan()
		return nil
	}
	o.current = append(o.current, cycle)
	return nil
}

// cycleMarker returns the marker tag shared by every value of the cycle,
// TagInvalid for a pure data cycle, or an error for a mix.
func cycleMarker(cycle []variant.Variant) (variant.Tag, error) {
	markers := 0
	for _, v := range cycle {
		if v.IsMarker() {
			markers++
		}
	}
	switch {
	case markers == 0:
		return variant.TagInvalid, nil
	case markers < len(cycle):
		return variant.TagInvalid, fmt.Errorf("%w: marker mixed with data", errors.ErrProtocolViolation)
	}
	tag := cycle[0].Tag()
	for _, v := range cycle[1:] {
		if v.Tag() != tag {
			return variant.TagInvalid, fmt.Errorf("%w: %s and %s markers in one cycle",
				errors.ErrProtocolViolation, tag, v.Tag())
		}
	}
	return tag, nil
}

func (o *ObjectCapturer) forward(cycle []variant.Variant, marker variant.Tag) error {
	var objects variant.Variant
	switch {
	case marker != variant.TagInvalid:
		objects = cycle[0]
	case len(cycle) == 1:
		objects = cycle[0]
	default:
		objects = variant.List(cycle...)
	}

	if o.onCapture != nil && marker == variant.TagInvalid {
		o.onCapture(Capture{Objects: objects})
	}
	return o.objects.Emit(objects)
}

func (o *ObjectCapturer) onSync(v variant.Variant) error {
	if o.completion == CompleteOnEndMarker {
		o.tags = append(o.tags, v)
		return o.drainFramed()
	}

	if o.open {
		if err := o.emit(o.tag, o.current); err != nil {
			return err
		}
	}
	o.open = true
	o.tag = v
	o.current = nil
	return nil
}

func (o *ObjectCapturer) onFramed(cycle []variant.Variant, marker variant.Tag) error {
	switch marker {
	case variant.TagRoundStart:
		o.framing = true
		o.current = nil
		return nil
	case variant.TagRoundEnd:
		if !o.framing {
			return errors.WrapFatal(fmt.Errorf("%w: end marker without start", errors.ErrProtocolViolation),
				o.Name(), "Process", "round framing")
		}
		o.framing = false
		o.rounds = append(o.rounds, o.current)
		o.current = nil
		return o.drainFramed()
	}

	if !o.framing {
		o.orphan()
		return nil
	}
	o.current = append(o.current, cycle)
	return nil
}

func (o *ObjectCapturer) drainFramed() error {
	for len(o.tags) > 0 && len(o.rounds) > 0 {
		tag, round := o.tags[0], o.rounds[0]
		o.tags, o.rounds = o.tags[1:], o.rounds[1:]
		if err := o.emit(tag, round); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObjectCapturer) orphan() {
	o.orphaned++
	o.Logger().Debug("Dropping data outside a round", "orphaned", o.orphaned)
}

func (o *ObjectCapturer) emit(tag variant.Variant, cycles [][]variant.Variant) error {
	objects := o.shape(cycles)
	if o.onCapture != nil {
		o.onCapture(Capture{Sync: tag, Objects: objects})
	}
	if err := o.syncOut.Emit(tag); err != nil {
		return err
	}
	return o.objects.Emit(objects)
}

func (o *ObjectCapturer) shape(cycles [][]variant.Variant) variant.Variant {
	if o.listMode == ListPerCycle {
		lists := make([]variant.Variant, len(cycles))
		for i, cycle := range cycles {
			lists[i] = variant.List(cycle...)
		}
		return variant.List(lists...)
	}

	lists := make([]variant.Variant, len(o.data))
	for i := range o.data {
		items := make([]variant.Variant, 0, len(cycles))
		for _, cycle := range cycles {
			items = append(items, cycle[i])
		}
		lists[i] = variant.List(items...)
	}
	return variant.List(lists...)
}

func objectCapturerFactory(name string, raw json.RawMessage, deps operation.Dependencies) (operation.Operation, error) {
	var cfg ObjectCapturerConfig
	if err := operation.SafeUnmarshal(raw, &cfg); err != nil {
		return nil, errors.Wrap(err, "ObjectCapturer", "Factory", "config")
	}
	return NewObjectCapturer(name, cfg, deps)
}

// Register registers the flow-control factories with the given registry
func Register(registry *operation.Registry) error {
	if err := registry.RegisterFactory(&operation.Registration{
		Name:        "group-capturer",
		Kind:        operation.KindFlowControl,
		Description: "Assembles rows from indexed inputs with per-slot defaults",
		Version:     "1.0.0",
		Factory:     groupCapturerFactory,
	}); err != nil {
		return err
	}
	return registry.RegisterFactory(&operation.Registration{
		Name:        "object-capturer",
		Kind:        operation.KindFlowControl,
		Description: "Collects data values into rounds keyed by a sync value",
		Version:     "1.0.0",
		Factory:     objectCapturerFactory,
	})
}

// Data returns the i-th data input
func (o *ObjectCapturer) Data(i int) *socket.InputSocket { return o.data[i] }
