package store

import "github.com/harun/toolhub/pkg/tool"

func cloneTool(t *tool.Tool) *tool.Tool {
	c := *t
	c.InputSchema = cloneMap(t.InputSchema)
	c.Settings = cloneMap(t.Settings)
	return &c
}

func cloneHandler(h *tool.Handler) *tool.Handler {
	c := *h
	c.InputSchemaTemplate = cloneMap(h.InputSchemaTemplate)
	if h.Env != nil {
		c.Env = make(map[string]string, len(h.Env))
		for k, v := range h.Env {
			c.Env[k] = v
		}
	}
	if h.Dependencies != nil {
		c.Dependencies = append([]string(nil), h.Dependencies...)
	}
	return &c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return cloneMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
