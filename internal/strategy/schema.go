package strategy

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Parameter schemas per strategy type, validated on create and update so a
// bad strategy can never be persisted.
var paramSchemas = map[string]*jsonschema.Schema{
	TypeRSILimit: jsonschema.MustCompileString("rsi_limit.json", `{
		"type": "object",
		"properties": {
			"lower":    {"type": "number", "minimum": 0, "maximum": 100},
			"upper":    {"type": "number", "minimum": 0, "maximum": 100},
			"quantity": {"type": "number", "exclusiveMinimum": 0}
		},
		"additionalProperties": {"type": "number"}
	}`),
}

// KnownType reports whether the evaluator understands a strategy type.
func KnownType(strategyType string) bool {
	_, ok := paramSchemas[strings.TrimSpace(strategyType)]
	return ok
}

// ValidateParams checks a strategy's parameter bag against the schema for its
// type, plus the cross-field rules a schema cannot express.
func ValidateParams(strategyType string, params map[string]float64) error {
	schema, ok := paramSchemas[strings.TrimSpace(strategyType)]
	if !ok {
		return fmt.Errorf("unknown strategy type %q", strategyType)
	}
	if params == nil {
		params = map[string]float64{}
	}
	// The validator wants generic JSON values, not a typed map.
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("invalid params for %s: %w", strategyType, err)
	}

	if strategyType == TypeRSILimit {
		lower, hasLower := params["lower"]
		upper, hasUpper := params["upper"]
		if !hasLower {
			lower = defaultRSILower
		}
		if !hasUpper {
			upper = defaultRSIUpper
		}
		if lower >= upper {
			return fmt.Errorf("invalid params for %s: lower (%.2f) must be below upper (%.2f)", strategyType, lower, upper)
		}
	}
	return nil
}
