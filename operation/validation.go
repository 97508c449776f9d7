package operation

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/c360/visionflow/errors"
)

// Config validation limits
const (
	MaxNameLength   = 128
	MaxStringLength = 1024
	MaxJSONSize     = 1024 * 1024
	maxDepth        = 10
	maxArraySize    = 4096
)

// Validatable is implemented by config structs that check themselves after
// unmarshaling.
type Validatable interface {
	Validate() error
}

// ValidateName checks operation and socket names. Names may contain ASCII
// letters, digits, '-' and '_'. The '.' is reserved as the separator in
// qualified socket references.
func ValidateName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "ConfigValidator", "ValidateName", "name too long")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_') {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %q", errors.ErrInvalidConfig, name),
				"ConfigValidator", "ValidateName", "invalid name characters")
		}
	}
	return nil
}

// ValidateFactoryConfig bounds the size, depth and content of a raw config
// before any factory sees it.
func ValidateFactoryConfig(raw json.RawMessage) error {
	if len(raw) > MaxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(raw), MaxJSONSize),
			"ConfigValidator", "ValidateFactoryConfig", "size check")
	}
	if len(raw) == 0 {
		return nil
	}

	var config any
	decoder := json.NewDecoder(strings.NewReader(string(raw)))
	decoder.UseNumber()
	if err := decoder.Decode(&config); err != nil {
		return errors.WrapInvalid(err, "ConfigValidator", "ValidateFactoryConfig", "JSON parsing")
	}

	return validateValue(config, 0)
}

func validateValue(value any, depth int) error {
	if depth > maxDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, maxDepth),
			"ConfigValidator", "validateValue", "depth check")
	}

	switch val := value.(type) {
	case string:
		if len(val) > MaxStringLength {
			return errors.WrapInvalid(
				fmt.Errorf("string length %d exceeds maximum %d", len(val), MaxStringLength),
				"ConfigValidator", "validateValue", "string length check")
		}
		if strings.ContainsRune(val, 0) {
			return errors.WrapInvalid(
				fmt.Errorf("string contains null byte"),
				"ConfigValidator", "validateValue", "null byte check")
		}

	case json.Number, bool, nil:

	case []any:
		if len(val) > maxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), maxArraySize),
				"ConfigValidator", "validateValue", "array size check")
		}
		for i, elem := range val {
			if err := validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("array element %d", i))
			}
		}

	case map[string]any:
		for key, elem := range val {
			if len(key) > MaxStringLength {
				return errors.WrapInvalid(
					fmt.Errorf("key '%s' length exceeds maximum", key),
					"ConfigValidator", "validateValue", "key length check")
			}
			if err := validateValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "ConfigValidator", "validateValue", fmt.Sprintf("object field '%s'", key))
			}
		}

	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T in config", value),
			"ConfigValidator", "validateValue", "type check")
	}

	return nil
}

// SafeUnmarshal validates raw and unmarshals it into target, then runs
// target's own Validate when it implements Validatable. An empty config
// leaves target at its defaults.
func SafeUnmarshal(raw json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(raw); err != nil {
		return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "config validation")
	}

	if reflect.TypeOf(target).Kind() != reflect.Ptr {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"ConfigValidator", "SafeUnmarshal", "target type check")
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.WrapInvalid(err, "ConfigValidator", "SafeUnmarshal", "JSON unmarshaling")
		}
	}

	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrap(err, "ConfigValidator", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}
