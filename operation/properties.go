package operation

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/c360/visionflow/errors"
)

// PropertyInfo describes one configurable property
type PropertyInfo struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Default     any      `json:"default,omitempty"`
	Enum        []string `json:"enum,omitempty"`
	Minimum     *float64 `json:"minimum,omitempty"`
	Maximum     *float64 `json:"maximum,omitempty"`
	Protected   bool     `json:"protected,omitempty"`
}

// PropertyOption refines a property definition
type PropertyOption func(*PropertyInfo)

// Protected forbids changes while the operation is active.
func Protected() PropertyOption {
	return func(p *PropertyInfo) { p.Protected = true }
}

// Min sets an inclusive lower bound for numeric properties.
func Min(v float64) PropertyOption {
	return func(p *PropertyInfo) { p.Minimum = &v }
}

// Max sets an inclusive upper bound for numeric properties.
func Max(v float64) PropertyOption {
	return func(p *PropertyInfo) { p.Maximum = &v }
}

// OneOf restricts a string property to the given values.
func OneOf(values ...string) PropertyOption {
	return func(p *PropertyInfo) { p.Enum = values }
}

type property struct {
	info PropertyInfo
	get  func() any
	set  func(v any) error
}

func (b *Base) define(info PropertyInfo, get func() any, set func(any) error, opts []PropertyOption) {
	for _, opt := range opts {
		opt(&info)
	}
	info.Default = get()

	b.propMu.Lock()
	defer b.propMu.Unlock()
	if b.props == nil {
		b.props = make(map[string]*property)
	}
	if _, exists := b.props[info.Name]; !exists {
		b.propOrder = append(b.propOrder, info.Name)
	}
	b.props[info.Name] = &property{info: info, get: get, set: set}
}

// DefineInt exposes *ptr as an integer property
func (b *Base) DefineInt(name, description string, ptr *int, opts ...PropertyOption) {
	b.define(PropertyInfo{Name: name, Type: "int", Description: description},
		func() any { return *ptr },
		func(v any) error {
			n, ok := toInt(v)
			if !ok {
				return fmt.Errorf("%w: %s expects an integer, got %T", errors.ErrInvalidProperty, name, v)
			}
			if err := b.checkRange(name, float64(n)); err != nil {
				return err
			}
			*ptr = n
			return nil
		}, opts)
}

// DefineFloat exposes *ptr as a floating-point property
func (b *Base) DefineFloat(name, description string, ptr *float64, opts ...PropertyOption) {
	b.define(PropertyInfo{Name: name, Type: "float", Description: description},
		func() any { return *ptr },
		func(v any) error {
			f, ok := toFloat(v)
			if !ok {
				return fmt.Errorf("%w: %s expects a number, got %T", errors.ErrInvalidProperty, name, v)
			}
			if err := b.checkRange(name, f); err != nil {
				return err
			}
			*ptr = f
			return nil
		}, opts)
}

// DefineBool exposes *ptr as a boolean property
func (b *Base) DefineBool(name, description string, ptr *bool, opts ...PropertyOption) {
	b.define(PropertyInfo{Name: name, Type: "bool", Description: description},
		func() any { return *ptr },
		func(v any) error {
			bv, ok := v.(bool)
			if !ok {
				return fmt.Errorf("%w: %s expects a boolean, got %T", errors.ErrInvalidProperty, name, v)
			}
			*ptr = bv
			return nil
		}, opts)
}

// DefineString exposes *ptr as a string property
func (b *Base) DefineString(name, description string, ptr *string, opts ...PropertyOption) {
	b.define(PropertyInfo{Name: name, Type: "string", Description: description},
		func() any { return *ptr },
		func(v any) error {
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("%w: %s expects a string, got %T", errors.ErrInvalidProperty, name, v)
			}
			if enum := b.propertyEnum(name); len(enum) > 0 && !slices.Contains(enum, s) {
				return fmt.Errorf("%w: %s must be one of %v", errors.ErrInvalidProperty, name, enum)
			}
			*ptr = s
			return nil
		}, opts)
}

// DefineDuration exposes *ptr as a duration property. Values may be
// time.Duration or a string accepted by time.ParseDuration.
func (b *Base) DefineDuration(name, description string, ptr *time.Duration, opts ...PropertyOption) {
	b.define(PropertyInfo{Name: name, Type: "duration", Description: description},
		func() any { return *ptr },
		func(v any) error {
			var d time.Duration
			switch x := v.(type) {
			case time.Duration:
				d = x
			case string:
				parsed, err := time.ParseDuration(x)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", errors.ErrInvalidProperty, name, err)
				}
				d = parsed
			default:
				return fmt.Errorf("%w: %s expects a duration, got %T", errors.ErrInvalidProperty, name, v)
			}
			if d < 0 {
				return fmt.Errorf("%w: %s must not be negative", errors.ErrInvalidProperty, name)
			}
			*ptr = d
			return nil
		}, opts)
}

func (b *Base) lookupProperty(name string) (*property, bool) {
	b.propMu.RLock()
	defer b.propMu.RUnlock()
	p, ok := b.props[name]
	return p, ok
}

func (b *Base) propertyEnum(name string) []string {
	if p, ok := b.lookupProperty(name); ok {
		return p.info.Enum
	}
	return nil
}

func (b *Base) checkRange(name string, v float64) error {
	p, ok := b.lookupProperty(name)
	if !ok {
		return nil
	}
	if p.info.Minimum != nil && v < *p.info.Minimum {
		return fmt.Errorf("%w: %s=%v below minimum %v", errors.ErrInvalidProperty, name, v, *p.info.Minimum)
	}
	if p.info.Maximum != nil && v > *p.info.Maximum {
		return fmt.Errorf("%w: %s=%v above maximum %v", errors.ErrInvalidProperty, name, v, *p.info.Maximum)
	}
	return nil
}

// SetProperty assigns a property by name. The assignment never overlaps a
// process cycle. Protected properties are rejected unless the operation is
// Stopped.
func (b *Base) SetProperty(name string, value any) error {
	p, ok := b.lookupProperty(name)
	if !ok {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownProperty, name),
			b.name, "SetProperty", "property lookup")
	}
	if p.info.Protected && b.State() != Stopped {
		return errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrProtectedProperty, name),
			b.name, "SetProperty", "protection check")
	}

	b.cfgMu.Lock()
	defer b.cfgMu.Unlock()
	if err := p.set(value); err != nil {
		return errors.WrapInvalid(err, b.name, "SetProperty", name)
	}
	return nil
}

// Property returns the current value of a property
func (b *Base) Property(name string) (any, error) {
	p, ok := b.lookupProperty(name)
	if !ok {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %q", errors.ErrUnknownProperty, name),
			b.name, "Property", "property lookup")
	}
	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	return p.get(), nil
}

// Properties lists property descriptions in definition order
func (b *Base) Properties() []PropertyInfo {
	b.propMu.RLock()
	defer b.propMu.RUnlock()
	out := make([]PropertyInfo, 0, len(b.propOrder))
	for _, name := range b.propOrder {
		out = append(out, b.props[name].info)
	}
	return out
}

// ApplyProperties sets each entry of values, stopping at the first error.
func (b *Base) ApplyProperties(values map[string]any) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := b.SetProperty(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int32:
		return int(x), true
	case int64:
		return int(x), true
	case uint32:
		return int(x), true
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
