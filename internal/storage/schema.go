package storage

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// pointerSchema constrains the last.json record. Unknown keys are allowed so the
// record can grow without breaking older readers.
const pointerSchema = `{
	"type": "object",
	"properties": {
		"last_name": {
			"type": "string",
			"minLength": 1,
			"pattern": "^[^/\\\\]+$",
			"not": {"enum": [".", ".."]}
		}
	},
	"required": ["last_name"]
}`

var compiledPointerSchema = jsonschema.MustCompileString("last.schema.json", pointerSchema)

// validatePointer validates a decoded record against the pointer schema.
func validatePointer(v any) error {
	if err := compiledPointerSchema.Validate(v); err != nil {
		return fmt.Errorf("record does not match schema: %w", err)
	}
	return nil
}
