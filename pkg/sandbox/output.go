package sandbox

import (
	"encoding/json"
	"strings"
	"time"
)

// parseOutput decodes trimmed stdout as JSON, falling back to the raw text.
func parseOutput(stdout, stderr []byte, duration time.Duration) *ExecutionResult {
	raw := strings.TrimSpace(string(stdout))

	result := &ExecutionResult{
		RawOutput: raw,
		ExitCode:  0,
		Duration:  duration,
	}

	var decoded interface{}
	if raw != "" && json.Unmarshal([]byte(raw), &decoded) == nil {
		result.Result = decoded
		result.Parsed = true
		return result
	}

	result.Result = raw
	result.ErrorOutput = strings.TrimSpace(string(stderr))
	return result
}
