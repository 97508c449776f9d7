package operation

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/variant"
)

type emitterConfig struct {
	Values []int64 `json:"values"`
}

func (c *emitterConfig) Validate() error {
	if len(c.Values) == 0 {
		return errors.WrapInvalid(errors.ErrMissingConfig, "emitterConfig", "Validate", "values")
	}
	return nil
}

func emitterFactory(name string, raw json.RawMessage, _ Dependencies) (Operation, error) {
	var cfg emitterConfig
	if err := SafeUnmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	values := make([]variant.Variant, len(cfg.Values))
	for i, v := range cfg.Values {
		values[i] = variant.Int(v)
	}
	return buildEmitter(name, values...)
}

func TestRegistry_RegisterAndCreate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterFactory(&Registration{
		Name: "emitter", Kind: KindInput, Description: "emits values", Version: "1.0.0", Factory: emitterFactory,
	}))

	err := r.RegisterFactory(&Registration{Name: "emitter", Kind: KindInput, Factory: emitterFactory})
	assert.Error(t, err, "duplicate factory")
	assert.Error(t, r.RegisterFactory(&Registration{Name: "no-kind", Factory: emitterFactory}))
	assert.Error(t, r.RegisterFactory(&Registration{Name: "bad name", Kind: KindInput, Factory: emitterFactory}))
	assert.Error(t, r.RegisterFactory(&Registration{Name: "nil", Kind: KindInput}))

	op, err := r.Create("emitter", "src", json.RawMessage(`{"values":[1,2]}`), Dependencies{})
	require.NoError(t, err)
	assert.Equal(t, "src", op.Name())
	assert.Equal(t, []string{"out"}, op.OutputNames())
	assert.Empty(t, op.InputNames())

	_, err = r.Create("missing", "src", nil, Dependencies{})
	assert.True(t, errors.Is(err, errors.ErrFactoryNotFound))

	_, err = r.Create("emitter", "a.b", nil, Dependencies{})
	assert.True(t, errors.IsInvalid(err))

	_, err = r.Create("emitter", "src", json.RawMessage(`{}`), Dependencies{})
	assert.True(t, errors.Is(err, errors.ErrMissingConfig))

	reg, ok := r.Lookup("emitter")
	require.True(t, ok)
	assert.Equal(t, KindInput, reg.Kind)
	assert.Equal(t, []string{"emitter"}, r.Names())
	assert.Len(t, r.ListFactories(), 1)
}

func TestValidateName(t *testing.T) {
	for _, name := range []string{"camera", "frame-source_2", "A1"} {
		assert.NoError(t, ValidateName(name), name)
	}
	for _, name := range []string{"", "has space", "dot.ted", "slash/name", strings.Repeat("x", MaxNameLength+1)} {
		assert.Error(t, ValidateName(name), name)
	}
}

func TestValidateFactoryConfig(t *testing.T) {
	assert.NoError(t, ValidateFactoryConfig(nil))
	assert.NoError(t, ValidateFactoryConfig(json.RawMessage(`{"a":[1,2,{"b":"c"}]}`)))
	assert.Error(t, ValidateFactoryConfig(json.RawMessage(`{"a":`)))

	deep := strings.Repeat("[", maxDepth+2) + strings.Repeat("]", maxDepth+2)
	assert.Error(t, ValidateFactoryConfig(json.RawMessage(deep)))

	long := `{"a":"` + strings.Repeat("x", MaxStringLength+1) + `"}`
	assert.Error(t, ValidateFactoryConfig(json.RawMessage(long)))
}

func TestSafeUnmarshal(t *testing.T) {
	var cfg emitterConfig
	require.NoError(t, SafeUnmarshal(json.RawMessage(`{"values":[3]}`), &cfg))
	assert.Equal(t, []int64{3}, cfg.Values)

	assert.Error(t, SafeUnmarshal(json.RawMessage(`{"values":"x"}`), &cfg))
	assert.Error(t, SafeUnmarshal(json.RawMessage(`{"values":[1]}`), cfg), "target must be a pointer")
}
