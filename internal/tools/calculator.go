package tools

import (
	"context"
	"fmt"
)

// calculatorTool performs basic arithmetic. All failure modes —
// division by zero, unsupported operation, missing operands — are
// result strings, never handler errors.
func (r *Registry) calculatorTool() *Tool {
	return &Tool{
		Name:        "calculator",
		Description: "A simple calculator tool for basic arithmetic operations. Supported operations: add, subtract, multiply, divide.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"first_num": map[string]any{
					"type":        "number",
					"description": "The first operand.",
				},
				"second_num": map[string]any{
					"type":        "number",
					"description": "The second operand.",
				},
				"operation": map[string]any{
					"type":        "string",
					"description": "The operation to perform: add, subtract, multiply, or divide.",
				},
			},
			"required": []string{"first_num", "second_num", "operation"},
		},
		Handler: handleCalculator,
	}
}

func handleCalculator(_ context.Context, args map[string]any) (string, error) {
	a, okA := floatArg(args, "first_num")
	b, okB := floatArg(args, "second_num")
	if !okA || !okB {
		return "❌ Error: first_num and second_num must be numbers.", nil
	}

	op := stringArg(args, "operation")
	switch op {
	case "add":
		return fmt.Sprintf("%g + %g = %g", a, b, a+b), nil
	case "subtract":
		return fmt.Sprintf("%g - %g = %g", a, b, a-b), nil
	case "multiply":
		return fmt.Sprintf("%g × %g = %g", a, b, a*b), nil
	case "divide":
		if b == 0 {
			return "❌ Error: Division by zero is not allowed.", nil
		}
		return fmt.Sprintf("%g ÷ %g = %g", a, b, a/b), nil
	default:
		return fmt.Sprintf("❌ Error: Unsupported operation %q. Use: add, subtract, multiply, or divide.", op), nil
	}
}
