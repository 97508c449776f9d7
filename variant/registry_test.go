package variant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
)

func TestRegistry_DecodeValue(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		raw  any
		want Variant
	}{
		{"integral number", 5.0, Int(5)},
		{"fractional number", 0.5, Float(0.5)},
		{"string", "cam0", String("cam0")},
		{"bool", true, Bool(true)},
		{"list", []any{1.0, "a"}, List(Int(1), String("a"))},
		{"explicit float", map[string]any{"type": "float", "value": 5.0}, Float(5)},
		{"record", map[string]any{"x": 1.0}, Record(map[string]Variant{"x": Int(1)})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.DecodeValue(tt.raw)
			require.NoError(t, err)
			assert.True(t, Equal(tt.want, got), "got %s", got)
		})
	}
}

func TestRegistry_DecodeMatrix(t *testing.T) {
	r := NewRegistry()

	v, err := r.Decode(TagMatrix, []any{[]any{1.0, 2.0}, []any{3.0, 4.0}})
	require.NoError(t, err)

	m, ok := As[*Matrix](v)
	require.True(t, ok)
	assert.Equal(t, 2, m.Rows)
	assert.Equal(t, 4.0, m.At(1, 1))

	_, err = r.Decode(TagMatrix, []any{[]any{1.0}, []any{1.0, 2.0}})
	assert.ErrorIs(t, err, errors.ErrTypeMismatch)
}

func TestRegistry_UnknownAndDuplicate(t *testing.T) {
	r := NewRegistry()

	_, err := r.Decode("point", 1.0)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	reg := &Registration{Tag: "point", Description: "2D point", Decode: func(raw any) (Variant, error) {
		return New("point", raw), nil
	}}
	require.NoError(t, r.Register(reg))
	assert.Error(t, r.Register(reg))
	assert.Error(t, r.Register(&Registration{Tag: "nodecoder"}))

	got, ok := r.Lookup("point")
	require.True(t, ok)
	assert.Nil(t, got.Decode)
	assert.Contains(t, r.Tags(), Tag("point"))
}
