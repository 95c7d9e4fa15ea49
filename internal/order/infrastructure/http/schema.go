package http

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const checkoutSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["product_id", "quantity"],
        "properties": {
          "product_id": { "type": "string", "minLength": 1 },
          "quantity": { "type": "integer", "minimum": 1, "maximum": 1000000 }
        },
        "additionalProperties": false
      }
    }
  },
  "additionalProperties": false
}`

const statusSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["status"],
  "properties": {
    "status": { "type": "string", "enum": ["CREATED", "PROCESSING", "SHIPPING", "DELIVERED", "CANCELLED"] }
  },
  "additionalProperties": false
}`

var (
	checkoutLoader = gojsonschema.NewStringLoader(checkoutSchema)
	statusLoader   = gojsonschema.NewStringLoader(statusSchema)
)

func validateJSONSchema(schema gojsonschema.JSONLoader, body []byte) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("invalid body: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid body: %s", strings.Join(msgs, "; "))
	}
	return nil
}
