package httpbackend

import (
	"bytes"
	"embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Response schemas, by file name under schema/.
const (
	schemaSnapshot = "snapshot.json"
	schemaModels   = "models.json"
	schemaReady    = "ready.json"
)

type schemas map[string]*jsonschema.Schema

func compileSchemas() (schemas, error) {
	compiler := jsonschema.NewCompiler()
	names := []string{schemaSnapshot, schemaModels, schemaReady}
	for _, name := range names {
		data, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return nil, fmt.Errorf("httpbackend: read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("httpbackend: add schema %s: %w", name, err)
		}
	}
	out := make(schemas, len(names))
	for _, name := range names {
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("httpbackend: compile schema %s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}
