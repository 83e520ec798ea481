package coretools

import (
	"fmt"

	"github.com/harun/toolhub/pkg/tool"
)

// Namespace is shared by every in-process handler in this package.
const Namespace = "coretools"

// Handler references of the built-in in-process tools.
const (
	CalculatorRef = Namespace + ".Calculator"
	DateTimeRef   = Namespace + ".DateTime"
	EchoRef       = Namespace + ".Echo"
)

// Registrar accepts in-process factories keyed by handler reference.
type Registrar interface {
	Register(ref string, factory tool.Factory) error
}

// Register adds the built-in tool factories to r.
func Register(r Registrar) error {
	factories := map[string]tool.Factory{
		CalculatorRef: NewCalculator,
		DateTimeRef:   NewDateTime,
		EchoRef:       NewEcho,
	}

	for _, ref := range []string{CalculatorRef, DateTimeRef, EchoRef} {
		if err := r.Register(ref, factories[ref]); err != nil {
			return fmt.Errorf("failed to register %s: %w", ref, err)
		}
	}
	return nil
}

// Handlers returns the handler records backing the built-in tools.
func Handlers() []*tool.Handler {
	return []*tool.Handler{
		{
			Name:                "calculator",
			Kind:                tool.KindInProcess,
			DisplayName:         "Calculator",
			Description:         "Basic arithmetic: add, subtract, multiply and divide.",
			Version:             tool.DefaultVersion,
			Author:              "System",
			Namespace:           Namespace,
			TypeName:            "Calculator",
			InputSchemaTemplate: calculatorSchema(),
			BuiltIn:             true,
			Active:              true,
			SortOrder:           1,
		},
		{
			Name:                "datetime",
			Kind:                tool.KindInProcess,
			DisplayName:         "Date & Time",
			Description:         "Current date and time in an IANA timezone.",
			Version:             tool.DefaultVersion,
			Author:              "System",
			Namespace:           Namespace,
			TypeName:            "DateTime",
			InputSchemaTemplate: dateTimeSchema(),
			BuiltIn:             true,
			Active:              true,
			SortOrder:           2,
		},
		{
			Name:                "echo",
			Kind:                tool.KindInProcess,
			DisplayName:         "Echo",
			Description:         "Echoes a message back, optionally after a short delay.",
			Version:             tool.DefaultVersion,
			Author:              "System",
			Namespace:           Namespace,
			TypeName:            "Echo",
			InputSchemaTemplate: echoSchema(),
			BuiltIn:             true,
			Active:              true,
			SortOrder:           3,
		},
	}
}

// Tools returns the tool records exposing the built-in handlers.
func Tools() []*tool.Tool {
	return []*tool.Tool{
		{
			Name:        "calculator",
			DisplayName: "Calculator",
			Description: "Perform basic arithmetic operations including addition, subtraction, multiplication, and division.",
			InputSchema: calculatorSchema(),
			Handler:     CalculatorRef,
			Active:      true,
			SortOrder:   1,
		},
		{
			Name:        "get_current_datetime",
			DisplayName: "Get Current DateTime",
			Description: "Get the current date and time in a specified timezone with multiple format options.",
			InputSchema: dateTimeSchema(),
			Handler:     DateTimeRef,
			Active:      true,
			SortOrder:   2,
		},
		{
			Name:        "echo",
			DisplayName: "Echo",
			Description: "Echo back the input message for testing purposes with additional metadata.",
			InputSchema: echoSchema(),
			Handler:     EchoRef,
			Active:      true,
			SortOrder:   3,
			Settings: map[string]interface{}{
				"max_delay": 5,
			},
		},
	}
}

func calculatorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"operation": map[string]interface{}{
				"type":        "string",
				"enum":        []interface{}{"add", "subtract", "multiply", "divide"},
				"description": "The arithmetic operation to perform",
			},
			"a": map[string]interface{}{
				"type":        "number",
				"description": "First operand",
			},
			"b": map[string]interface{}{
				"type":        "number",
				"description": "Second operand",
			},
		},
		"required": []interface{}{"operation", "a", "b"},
	}
}

func dateTimeSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone identifier (defaults to UTC)",
				"default":     "UTC",
			},
		},
	}
}

func echoSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"message": map[string]interface{}{
				"type":        "string",
				"description": "Message to echo back",
			},
			"delay": map[string]interface{}{
				"type":        "number",
				"description": "Optional delay in seconds (max 5)",
				"minimum":     0,
				"maximum":     5,
			},
		},
		"required": []interface{}{"message"},
	}
}
