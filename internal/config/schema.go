package config

import "github.com/invopop/jsonschema"

// Schema describes the JSON config file accepted by Load.
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	schema := reflector.Reflect(new(Config))
	schema.Title = "Arena Node Config"
	schema.Description = "Settings for one node of a two-player arena link"
	return schema
}
