package actions

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed action.schema.json
var schemaJSON []byte

const schemaURL = "profacademy://action.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

// actionSchema compiles the embedded action schema on first use.
func actionSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("parse action schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(schemaURL)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile action schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

// parseDocument parses body the way the schema validator expects it,
// with numbers kept as json.Number.
func parseDocument(body string) (any, error) {
	return jsonschema.UnmarshalJSON(strings.NewReader(body))
}

func validate(doc any) error {
	sch, err := actionSchema()
	if err != nil {
		return err
	}
	return sch.Validate(doc)
}
