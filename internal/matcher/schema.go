package matcher

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/response.json
var responseSchemaJSON []byte

const responseSchemaURL = "matcher/response.json"

var responseSchema = mustCompile(responseSchemaURL, responseSchemaJSON)

func mustCompile(url string, data []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		panic(fmt.Sprintf("failed to add schema %s: %v", url, err))
	}
	schema, err := compiler.Compile(url)
	if err != nil {
		panic(fmt.Sprintf("failed to compile schema %s: %v", url, err))
	}
	return schema
}

// validateResponse checks a raw matcher body against the response schema.
func validateResponse(body []byte) error {
	var v interface{}
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("%w: body is not valid JSON: %v", ErrInvalidResponse, err)
	}
	if err := responseSchema.Validate(v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}
