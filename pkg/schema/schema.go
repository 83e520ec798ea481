package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/harun/toolhub/pkg/tool"
)

// ErrMalformedSchema is returned when a schema cannot be used for validation
var ErrMalformedSchema = errors.New("malformed input schema")

// Validate checks input against a JSON-Schema-like object. Only the
// required list and per-property primitive types are enforced. A failure
// is returned as a *tool.Error of kind invalid_tool_input.
func Validate(input map[string]interface{}, schema map[string]interface{}) error {
	props, ok := schema["properties"].(map[string]interface{})
	if !ok || len(props) == 0 {
		return nil
	}

	for _, name := range Required(schema) {
		if _, present := input[name]; !present {
			return tool.InvalidInput("Missing required parameter: %s", name)
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value, present := input[name]
		if !present {
			continue
		}
		prop, ok := props[name].(map[string]interface{})
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		if typ == "" {
			continue
		}
		if !MatchesType(value, typ) {
			return tool.InvalidInput("Parameter '%s' must be %s", name, typ)
		}
	}

	return nil
}

// Required returns the schema's required list. Both []string and the
// []interface{} produced by JSON and YAML decoding are accepted.
func Required(schema map[string]interface{}) []string {
	switch req := schema["required"].(type) {
	case []string:
		return req
	case []interface{}:
		out := make([]string, 0, len(req))
		for _, item := range req {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// MatchesType reports whether value has the runtime shape of a declared
// schema type. Unknown type names match anything.
func MatchesType(value interface{}, typ string) bool {
	switch typ {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		return IsNumeric(value)
	case "integer":
		return isInteger(value)
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Slice
	case "object":
		if value == nil {
			return false
		}
		return reflect.TypeOf(value).Kind() == reflect.Map
	default:
		return true
	}
}

// IsNumeric accepts any finite Go numeric, json.Number, or a string that
// parses as a finite number. "NaN" and "Inf" are not numbers here.
func IsNumeric(value interface{}) bool {
	_, ok := ToFloat(value)
	return ok
}

// ToFloat converts any numeric representation to a finite float64.
func ToFloat(value interface{}) (float64, bool) {
	f, ok := toFloat(value)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func isInteger(value interface{}) bool {
	switch v := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case float64:
		return v == math.Trunc(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v) == math.Trunc(float64(v))
	case json.Number:
		_, err := v.Int64()
		return err == nil
	default:
		return false
	}
}

// CheckWellFormed verifies a schema is usable: it must compile as JSON
// Schema and its properties, if present, must be a mapping. An empty or
// nil schema is well formed.
func CheckWellFormed(schema map[string]interface{}) error {
	if len(schema) == 0 {
		return nil
	}

	if raw, present := schema["properties"]; present {
		if _, ok := raw.(map[string]interface{}); !ok {
			return fmt.Errorf("%w: properties must be an object", ErrMalformedSchema)
		}
	}

	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSchema, err)
	}

	return nil
}
