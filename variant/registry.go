package variant

import (
	"encoding/base64"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/c360/visionflow/errors"
)

// Decoder builds a Variant from a loosely typed document value, as produced
// by encoding/json or yaml.v3.
type Decoder func(raw any) (Variant, error)

// Registration describes one payload type known to a Registry.
type Registration struct {
	Tag         Tag     `json:"tag"`
	Description string  `json:"description"`
	Decode      Decoder `json:"-"`
}

// Registry maps type tags to decoders. A Registry is owned by the caller
// that builds an engine and is passed explicitly; there is no global instance.
type Registry struct {
	registrations map[Tag]*Registration
	mu            sync.RWMutex
}

// NewRegistry returns a registry holding the built-in scalar, list and
// record types.
func NewRegistry() *Registry {
	r := &Registry{registrations: make(map[Tag]*Registration)}
	for _, reg := range builtins(r) {
		r.registrations[reg.Tag] = reg
	}
	return r
}

// Register adds a payload type. Registering a tag twice is an error.
func (r *Registry) Register(reg *Registration) error {
	if reg == nil || reg.Tag == TagInvalid {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "VariantRegistry", "Register", "registration validation")
	}
	if reg.Decode == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "VariantRegistry", "Register", "decoder validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.registrations[reg.Tag]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("type %q is already registered", reg.Tag),
			"VariantRegistry", "Register", "duplicate type check")
	}
	r.registrations[reg.Tag] = reg
	return nil
}

// Lookup returns a copy of the registration for tag.
func (r *Registry) Lookup(tag Tag) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.registrations[tag]
	if !ok {
		return nil, false
	}
	return &Registration{Tag: reg.Tag, Description: reg.Description}, true
}

// Tags lists registered tags in sorted order.
func (r *Registry) Tags() []Tag {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tags := make([]Tag, 0, len(r.registrations))
	for t := range r.registrations {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}

// Decode builds a Variant of the given tag from raw.
func (r *Registry) Decode(tag Tag, raw any) (Variant, error) {
	r.mu.RLock()
	reg, ok := r.registrations[tag]
	r.mu.RUnlock()

	if !ok {
		return Variant{}, errors.WrapInvalid(
			fmt.Errorf("type %q: %w", tag, errors.ErrTypeMismatch),
			"VariantRegistry", "Decode", "type lookup")
	}
	v, err := reg.Decode(raw)
	if err != nil {
		return Variant{}, errors.WrapInvalid(err, "VariantRegistry", "Decode", fmt.Sprintf("decode %s", tag))
	}
	return v, nil
}

// DecodeValue builds a Variant from a document value. A map of the form
// {"type": tag, "value": raw} selects the tag explicitly; anything else is
// inferred from its Go type.
func (r *Registry) DecodeValue(raw any) (Variant, error) {
	if m, ok := raw.(map[string]any); ok {
		if t, ok := m["type"].(string); ok {
			if value, ok := m["value"]; ok && len(m) == 2 {
				return r.Decode(Tag(t), value)
			}
		}
	}
	return r.infer(raw)
}

func (r *Registry) infer(raw any) (Variant, error) {
	switch x := raw.(type) {
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return Int(int64(x)), nil
		}
		return Float(x), nil
	case []any:
		items := make([]Variant, 0, len(x))
		for _, item := range x {
			v, err := r.DecodeValue(item)
			if err != nil {
				return Variant{}, err
			}
			items = append(items, v)
		}
		return List(items...), nil
	case map[string]any:
		fields := make(map[string]Variant, len(x))
		for k, item := range x {
			v, err := r.DecodeValue(item)
			if err != nil {
				return Variant{}, err
			}
			fields[k] = v
		}
		return Record(fields), nil
	}
	return Variant{}, errors.WrapInvalid(
		fmt.Errorf("%T: %w", raw, errors.ErrTypeMismatch), "VariantRegistry", "DecodeValue", "infer type")
}

func builtins(r *Registry) []*Registration {
	return []*Registration{
		{Tag: TagBool, Description: "boolean", Decode: func(raw any) (Variant, error) {
			b, ok := raw.(bool)
			if !ok {
				return Variant{}, mismatch(TagBool, raw)
			}
			return Bool(b), nil
		}},
		{Tag: TagInt, Description: "64-bit signed integer", Decode: func(raw any) (Variant, error) {
			switch x := raw.(type) {
			case int:
				return Int(int64(x)), nil
			case int64:
				return Int(x), nil
			case float64:
				if x == math.Trunc(x) {
					return Int(int64(x)), nil
				}
			}
			return Variant{}, mismatch(TagInt, raw)
		}},
		{Tag: TagFloat, Description: "64-bit float", Decode: func(raw any) (Variant, error) {
			switch x := raw.(type) {
			case int:
				return Float(float64(x)), nil
			case float64:
				return Float(x), nil
			}
			return Variant{}, mismatch(TagFloat, raw)
		}},
		{Tag: TagString, Description: "UTF-8 string", Decode: func(raw any) (Variant, error) {
			s, ok := raw.(string)
			if !ok {
				return Variant{}, mismatch(TagString, raw)
			}
			return String(s), nil
		}},
		{Tag: TagBytes, Description: "base64 encoded bytes", Decode: func(raw any) (Variant, error) {
			s, ok := raw.(string)
			if !ok {
				return Variant{}, mismatch(TagBytes, raw)
			}
			b, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return Variant{}, err
			}
			return Bytes(b), nil
		}},
		{Tag: TagList, Description: "ordered list of values", Decode: func(raw any) (Variant, error) {
			if _, ok := raw.([]any); !ok {
				return Variant{}, mismatch(TagList, raw)
			}
			return r.infer(raw)
		}},
		{Tag: TagRecord, Description: "string keyed record", Decode: func(raw any) (Variant, error) {
			if _, ok := raw.(map[string]any); !ok {
				return Variant{}, mismatch(TagRecord, raw)
			}
			return r.infer(raw)
		}},
		{Tag: TagMatrix, Description: "row-major float matrix", Decode: decodeMatrix},
	}
}

func decodeMatrix(raw any) (Variant, error) {
	rows, ok := raw.([]any)
	if !ok {
		return Variant{}, mismatch(TagMatrix, raw)
	}
	var data []float64
	cols := -1
	for _, row := range rows {
		cells, ok := row.([]any)
		if !ok || (cols >= 0 && len(cells) != cols) {
			return Variant{}, mismatch(TagMatrix, raw)
		}
		cols = len(cells)
		for _, c := range cells {
			f, ok := c.(float64)
			if !ok {
				if i, isInt := c.(int); isInt {
					f, ok = float64(i), true
				}
			}
			if !ok {
				return Variant{}, mismatch(TagMatrix, raw)
			}
			data = append(data, f)
		}
	}
	if cols < 0 {
		cols = 0
	}
	m, err := NewMatrix(len(rows), cols, data)
	if err != nil {
		return Variant{}, err
	}
	return FromMatrix(m), nil
}

func mismatch(tag Tag, raw any) error {
	return fmt.Errorf("cannot decode %T as %s: %w", raw, tag, errors.ErrTypeMismatch)
}
