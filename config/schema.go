package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/visionflow/errors"
)

//go:embed schema/graph.schema.json
var graphSchema string

var schemaLoader = gojsonschema.NewStringLoader(graphSchema)

// Schema returns the JSON schema graph documents are validated against
func Schema() string { return graphSchema }

// validateSchema checks a JSON document against the graph schema
func validateSchema(doc []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return errors.WrapInvalid(err, "Config", "validateSchema", "schema validation")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(
		fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; ")),
		"Config", "validateSchema", "schema validation")
}
