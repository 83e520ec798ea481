package coretools

import (
	"context"
	"math"

	"github.com/harun/toolhub/pkg/schema"
	"github.com/harun/toolhub/pkg/tool"
)

var calculatorOperations = []string{"add", "subtract", "multiply", "divide"}

// Calculator performs one arithmetic operation on two operands.
type Calculator struct {
	Base
}

// NewCalculator binds a calculator to a tool record
func NewCalculator(t *tool.Tool) (tool.Executor, error) {
	return &Calculator{Base: newBase(t, calculatorSchema())}, nil
}

// ValidateInput applies the schema, then the stricter operand checks.
func (c *Calculator) ValidateInput(ctx context.Context, input map[string]interface{}) error {
	if err := c.Base.ValidateInput(ctx, input); err != nil {
		return err
	}
	_, _, _, err := c.parse(input)
	return err
}

// Execute returns {"result": a <op> b}.
func (c *Calculator) Execute(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	op, a, b, err := c.parse(input)
	if err != nil {
		return nil, err
	}

	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, tool.InvalidInput("Cannot divide by zero.")
		}
		result = a / b
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return nil, tool.InvalidInput("Result of %s is out of range.", op)
	}

	return map[string]interface{}{"result": result}, nil
}

func (c *Calculator) parse(input map[string]interface{}) (string, float64, float64, error) {
	op, err := schema.RequireEnum(input, "operation", calculatorOperations...)
	if err != nil {
		return "", 0, 0, err
	}
	a, err := schema.RequireNumber(input, "a")
	if err != nil {
		return "", 0, 0, err
	}
	b, err := schema.RequireNumber(input, "b")
	if err != nil {
		return "", 0, 0, err
	}
	return op, a, b, nil
}
