package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/pelletier/go-toml/v2"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var defaultSchema string

const schemaResourceURL = "irodsd://config.schema.json"

// DefaultSchema returns the JSON schema bundled with the binary.
func DefaultSchema() string {
	return defaultSchema
}

// ValidateSchema checks the raw TOML document at configPath against a JSON
// schema. An empty schema uses DefaultSchema. A missing config file is not an
// error because defaults apply.
func ValidateSchema(configPath string, schema []byte) error {
	if len(schema) == 0 {
		schema = []byte(defaultSchema)
	}
	raw, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return validateDocument(raw, schema)
}

// ValidateSchemaFile is ValidateSchema with the schema read from schemaPath.
func ValidateSchemaFile(configPath, schemaPath string) error {
	schemaPath, err := expandPath(schemaPath)
	if err != nil {
		return err
	}
	schema, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read json schema: %w", err)
	}
	return ValidateSchema(configPath, schema)
}

func validateDocument(rawTOML, schema []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(schemaResourceURL, bytes.NewReader(schema)); err != nil {
		return fmt.Errorf("load json schema: %w", err)
	}
	compiled, err := compiler.Compile(schemaResourceURL)
	if err != nil {
		return fmt.Errorf("compile json schema: %w", err)
	}

	var doc map[string]any
	if err := toml.Unmarshal(rawTOML, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	// The validator only understands JSON value types (float64, []any, ...).
	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert config for schema validation: %w", err)
	}
	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return fmt.Errorf("convert config for schema validation: %w", err)
	}

	if err := compiled.Validate(value); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
