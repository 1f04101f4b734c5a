package workflow

import (
	_ "embed"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed workflow.schema.json
var embeddedSchema string

var schemaLoader = gojsonschema.NewStringLoader(embeddedSchema)

// ValidateSchema checks raw JSON against the workflow definition schema and
// returns one problem per violation.
func ValidateSchema(jsonData []byte) ([]string, error) {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		problems = append(problems, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return problems, nil
}
