package check

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// MatchesSchema compiles a JSON Schema once and returns a predicate that
// passes when the response body validates against it.
func MatchesSchema(schema string) (Predicate, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("invalid schema: %w", err)
	}

	return func(resp *Response) (bool, error) {
		dec := json.NewDecoder(bytes.NewReader(resp.Body))
		dec.UseNumber()

		var doc interface{}
		if err := dec.Decode(&doc); err != nil {
			return false, fmt.Errorf("invalid JSON: %w", err)
		}

		if err := compiled.Validate(doc); err != nil {
			var verr *jsonschema.ValidationError
			if errors.As(err, &verr) {
				return false, nil
			}
			return false, err
		}
		return true, nil
	}, nil
}
