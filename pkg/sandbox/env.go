package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// buildEnvironment composes the script environment. Later entries win:
// minimal base, passed-through host variables, handler env, inputs, then
// the two metadata variables.
func buildEnvironment(cfg Config, req ScriptRequest) []string {
	result := []string{
		"PATH=/usr/local/bin:/usr/bin:/bin",
		"HOME=/tmp",
	}

	for _, name := range cfg.PassEnv {
		if value, ok := os.LookupEnv(name); ok {
			result = append(result, name+"="+value)
		}
	}

	for _, key := range sortedKeys(req.Env) {
		result = append(result, key+"="+req.Env[key])
	}

	inputKeys := make([]string, 0, len(req.Input))
	for key := range req.Input {
		inputKeys = append(inputKeys, key)
	}
	sort.Strings(inputKeys)
	for _, key := range inputKeys {
		result = append(result, InputEnvName(key)+"="+EncodeEnvValue(req.Input[key]))
	}

	result = append(result,
		ToolNameEnv+"="+req.ToolName,
		ToolTypeEnv+"="+ToolTypeScript,
	)

	return result
}

// InputEnvName returns the variable name an input key is exported under:
// the key upper-cased. Only "=" and NUL, which would corrupt the entry,
// are replaced by "_".
func InputEnvName(key string) string {
	name := strings.ToUpper(key)
	name = strings.NewReplacer("=", "_", "\x00", "_").Replace(name)
	return InputEnvPrefix + name
}

// EncodeEnvValue stringifies an input value. Arrays and objects become
// JSON text; nil becomes the empty string.
func EncodeEnvValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case []interface{}, map[string]interface{}:
		return encodeJSON(v)
	default:
		if s, ok := value.(fmt.Stringer); ok {
			return s.String()
		}
		return encodeJSON(v)
	}
}

func encodeJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
