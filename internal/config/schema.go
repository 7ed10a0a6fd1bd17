package config

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaOnce = sync.OnceValues(func() ([]byte, error) {
	r := &jsonschema.Reflector{FieldNameTag: "yaml"}
	return json.MarshalIndent(r.Reflect(&Config{}), "", "  ")
})

// JSONSchema renders a JSON Schema for the config file format, for
// editor integration and the `shai-agent schema` subcommand.
func JSONSchema() ([]byte, error) {
	return schemaOnce()
}
