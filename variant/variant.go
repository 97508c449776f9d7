package variant

import (
	"fmt"
	"reflect"
	"strings"
)

// Tag identifies the runtime type of a Variant payload.
type Tag string

// Built-in tags.
const (
	TagInvalid Tag = ""
	TagBool    Tag = "bool"
	TagInt     Tag = "int"
	TagFloat   Tag = "float"
	TagString  Tag = "string"
	TagBytes   Tag = "bytes"
	TagImage   Tag = "image"
	TagMatrix  Tag = "matrix"
	TagList    Tag = "list"
	TagRecord  Tag = "record"

	// TagRoundStart and TagRoundEnd frame one round of values on an edge.
	TagRoundStart Tag = "sync.start"
	TagRoundEnd   Tag = "sync.end"
)

// Variant is an immutable tagged value. The zero Variant is invalid.
type Variant struct {
	tag Tag
	box *box
}

type box struct {
	v any
}

// New wraps an arbitrary payload under tag. The payload must not be mutated
// after it has been wrapped.
func New(tag Tag, payload any) Variant {
	if tag == TagInvalid {
		return Variant{}
	}
	return Variant{tag: tag, box: &box{v: payload}}
}

// Bool returns a bool Variant.
func Bool(b bool) Variant { return New(TagBool, b) }

// Int returns an int Variant.
func Int(i int64) Variant { return New(TagInt, i) }

// Float returns a float Variant.
func Float(f float64) Variant { return New(TagFloat, f) }

// String returns a string Variant.
func String(s string) Variant { return New(TagString, s) }

// Bytes returns a bytes Variant holding a private copy of b.
func Bytes(b []byte) Variant {
	cp := make([]byte, len(b))
	copy(cp, b)
	return New(TagBytes, cp)
}

// List returns a list Variant. The element slice is copied.
func List(items ...Variant) Variant {
	cp := make([]Variant, len(items))
	copy(cp, items)
	return New(TagList, cp)
}

// Record returns a record Variant. The field map is copied.
func Record(fields map[string]Variant) Variant {
	cp := make(map[string]Variant, len(fields))
	for k, v := range fields {
		cp[k] = v
	}
	return New(TagRecord, cp)
}

// FromImage returns an image Variant.
func FromImage(img *Image) Variant { return New(TagImage, img) }

// FromMatrix returns a matrix Variant.
func FromMatrix(m *Matrix) Variant { return New(TagMatrix, m) }

// StartMarker returns the marker that opens a round on an edge.
func StartMarker() Variant { return New(TagRoundStart, struct{}{}) }

// EndMarker returns the marker that closes a round on an edge.
func EndMarker() Variant { return New(TagRoundEnd, struct{}{}) }

// Tag returns the type tag.
func (v Variant) Tag() Tag { return v.tag }

// IsValid reports whether v holds a value.
func (v Variant) IsValid() bool { return v.tag != TagInvalid && v.box != nil }

// IsMarker reports whether v is a round marker.
func (v Variant) IsMarker() bool { return v.tag == TagRoundStart || v.tag == TagRoundEnd }

// Value returns the raw payload, or nil for an invalid Variant.
func (v Variant) Value() any {
	if v.box == nil {
		return nil
	}
	return v.box.v
}

// Shares reports whether a and b share the same payload instance.
func (v Variant) Shares(other Variant) bool { return v.box != nil && v.box == other.box }

// As returns the payload of v as T.
func As[T any](v Variant) (T, bool) {
	t, ok := v.Value().(T)
	return t, ok
}

// AsInt returns the payload as int64, converting from float when integral.
func (v Variant) AsInt() (int64, bool) {
	switch x := v.Value().(type) {
	case int64:
		return x, true
	case float64:
		if x == float64(int64(x)) {
			return int64(x), true
		}
	}
	return 0, false
}

// AsFloat returns the payload as float64, widening ints.
func (v Variant) AsFloat() (float64, bool) {
	switch x := v.Value().(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// Items returns the elements of a list Variant.
func (v Variant) Items() []Variant {
	items, _ := As[[]Variant](v)
	return items
}

// Equaler is implemented by custom payloads that define their own equality.
type Equaler interface {
	Equal(other any) bool
}

// Equal reports whether a and b hold equal payloads of the same tag.
func Equal(a, b Variant) bool {
	if a.tag != b.tag {
		return false
	}
	if !a.IsValid() || !b.IsValid() {
		return a.IsValid() == b.IsValid()
	}
	if a.box == b.box {
		return true
	}

	switch a.tag {
	case TagList:
		x, y := a.Items(), b.Items()
		if len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case TagRecord:
		x, _ := As[map[string]Variant](a)
		y, _ := As[map[string]Variant](b)
		if len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !Equal(xv, yv) {
				return false
			}
		}
		return true
	}

	if eq, ok := a.Value().(Equaler); ok {
		return eq.Equal(b.Value())
	}
	return reflect.DeepEqual(a.Value(), b.Value())
}

// String renders v for logs and diagnostics.
func (v Variant) String() string {
	if !v.IsValid() {
		return "<invalid>"
	}
	switch v.tag {
	case TagList:
		parts := make([]string, 0, len(v.Items()))
		for _, item := range v.Items() {
			parts = append(parts, item.String())
		}
		return "[" + strings.Join(parts, " ") + "]"
	case TagRoundStart, TagRoundEnd:
		return "<" + string(v.tag) + ">"
	case TagBytes:
		b, _ := As[[]byte](v)
		return fmt.Sprintf("bytes(%d)", len(b))
	}
	if s, ok := v.Value().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", v.Value())
}
