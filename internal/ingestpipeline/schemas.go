package ingestpipeline

import (
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema source strings, compiled once on first use. Adapted from the
// teacher's PolicyFirewall (jsonschema.NewCompiler / Draft2020 / AddResource
// / Compile), retargeted from tool-parameter schemas to ingest fixture
// schemas (§4.14).
const (
	decisionSchemaJSON = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id", "option", "timestamp"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"option": {"type": "string", "minLength": 1},
			"timestamp": {"type": "string", "minLength": 1}
		}
	}`

	eventSchemaJSON = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id", "timestamp"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"timestamp": {"type": "string", "minLength": 1}
		}
	}`

	transitionSchemaJSON = `{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"type": "object",
		"required": ["id", "from", "to", "timestamp"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"from": {"type": "string", "minLength": 1},
			"to": {"type": "string", "minLength": 1},
			"timestamp": {"type": "string", "minLength": 1}
		}
	}`
)

var (
	schemasOnce sync.Once
	schemas     map[Kind]*jsonschema.Schema
)

func compiledSchemas() map[Kind]*jsonschema.Schema {
	schemasOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		sources := map[Kind]string{
			KindDecision:   decisionSchemaJSON,
			KindEvent:      eventSchemaJSON,
			KindTransition: transitionSchemaJSON,
		}
		schemas = make(map[Kind]*jsonschema.Schema, len(sources))
		for kind, src := range sources {
			url := "https://batvault.schemas.local/ingest/" + string(kind) + ".schema.json"
			if err := c.AddResource(url, strings.NewReader(src)); err != nil {
				panic("ingestpipeline: schema load failed for " + string(kind) + ": " + err.Error())
			}
			compiled, err := c.Compile(url)
			if err != nil {
				panic("ingestpipeline: schema compile failed for " + string(kind) + ": " + err.Error())
			}
			schemas[kind] = compiled
		}
	})
	return schemas
}

// validateSchema reports whether doc satisfies kind's JSON schema (§4.14),
// returning every violation as a ValidationError.
func validateSchema(path string, doc Doc, kind Kind) []ValidationError {
	schema, ok := compiledSchemas()[kind]
	if !ok {
		return []ValidationError{{Path: path, Message: "no schema registered for kind " + string(kind)}}
	}
	if err := schema.Validate(doc); err != nil {
		return []ValidationError{{Path: path, Message: err.Error()}}
	}
	return nil
}
