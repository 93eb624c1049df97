package editorstate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// SchemaID identifies the State JSON Schema document.
const SchemaID = "https://github.com/goliatone/go-editorstate/schemas/state.json"

// GenerateJSONSchema produces a JSON Schema Draft 2020-12 document describing
// State using invopop/jsonschema.
func GenerateJSONSchema() ([]byte, error) {
	data, err := json.MarshalIndent(reflectSchema(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	return data, nil
}

func reflectSchema() *jsonschema.Schema {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	r.RequiredFromJSONSchemaTags = true

	s := r.Reflect(&State{})
	s.ID = SchemaID
	s.Title = "Editor state"
	s.Description = "Shareable diagram editor state carried inside tokens"
	return s
}

type compiledSchema struct {
	once   sync.Once
	schema *sjsonschema.Schema
	err    error
}

var stateSchema compiledSchema

func (c *compiledSchema) get() (*sjsonschema.Schema, error) {
	c.once.Do(func() {
		raw, err := GenerateJSONSchema()
		if err != nil {
			c.err = err
			return
		}
		doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
		if err != nil {
			c.err = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		compiler := sjsonschema.NewCompiler()
		if err := compiler.AddResource(SchemaID, doc); err != nil {
			c.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		c.schema, c.err = compiler.Compile(SchemaID)
		if c.err != nil {
			c.err = fmt.Errorf("compile schema: %w", c.err)
		}
	})
	return c.schema, c.err
}

// ValidateField checks a single raw field value against the State schema. It
// returns nil when the value is acceptable for field.
func ValidateField(field string, raw json.RawMessage) error {
	schema, err := stateSchema.get()
	if err != nil {
		return err
	}
	value, err := sjsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	if err := schema.Validate(map[string]any{field: value}); err != nil {
		return fmt.Errorf("field %s: %w", field, err)
	}
	return nil
}

// ValidateState checks a complete State value against the schema.
func ValidateState(s State) error {
	schema, err := stateSchema.get()
	if err != nil {
		return err
	}
	data, err := marshalJSON(s)
	if err != nil {
		return err
	}
	doc, err := sjsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return err
	}
	return schema.Validate(doc)
}
