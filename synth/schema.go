package synth

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// generationSchema constrains the backend's JSON output: a named workflow
// with 3-6 typed steps and an assistant message.
const generationSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["workflowName", "workflowDescription", "steps", "assistantMessage"],
  "properties": {
    "workflowName": {
      "type": "string",
      "minLength": 1
    },
    "workflowDescription": {
      "type": "string",
      "minLength": 1
    },
    "parameters": {
      "type": "object"
    },
    "assistantMessage": {
      "type": "string",
      "minLength": 1
    },
    "steps": {
      "type": "array",
      "minItems": 3,
      "maxItems": 6,
      "items": {
        "type": "object",
        "required": ["id", "type", "title"],
        "properties": {
          "id": {
            "type": "string",
            "minLength": 1
          },
          "type": {
            "type": "string",
            "minLength": 1
          },
          "title": {
            "type": "string"
          },
          "description": {
            "type": "string"
          },
          "provider": {
            "type": "string"
          },
          "action": {
            "type": "string"
          },
          "edges": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["target_node_id"],
              "properties": {
                "target_node_id": {
                  "type": "string"
                },
                "edge_type": {
                  "type": "string"
                }
              }
            }
          },
          "parameters": {
            "type": "object"
          }
        }
      }
    }
  }
}`

// compileSchema parses the generation schema once at construction time.
func compileSchema() (*gojsonschema.Schema, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(generationSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to compile generation schema: %w", err)
	}
	return schema, nil
}

// validateGeneration checks raw backend output against the generation schema.
func validateGeneration(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		first := result.Errors()[0]
		return fmt.Errorf("generated workflow violates schema: %s: %s (%d violations)",
			first.Field(), first.Description(), len(result.Errors()))
	}
	return nil
}
