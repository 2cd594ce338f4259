package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RegisterBuiltins adds the stock functions to the registry.
func RegisterBuiltins(r *Registry) error {
	if err := r.Register(currentTimeSpec()); err != nil {
		return err
	}
	return r.Register(calculateSpec())
}

func currentTimeSpec() Spec {
	return Spec{
		Name:        "get_current_time",
		Description: "Get current time in specified timezone",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"timezone": map[string]any{
					"type": "string",
					"enum": []string{"UTC", "EST", "PST"},
				},
			},
			"required": []string{"timezone"},
		},
		Handler: func(_ context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Timezone string `json:"timezone"`
			}
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return "", fmt.Errorf("invalid get_current_time arguments: %w", err)
				}
			}
			loc := time.UTC
			switch args.Timezone {
			case "EST":
				loc = time.FixedZone("EST", -5*3600)
			case "PST":
				loc = time.FixedZone("PST", -8*3600)
			case "", "UTC":
				args.Timezone = "UTC"
			default:
				return "", fmt.Errorf("unsupported timezone: %s", args.Timezone)
			}
			return "Time: " + time.Now().In(loc).Format("2006-01-02 15:04:05") + " timezone " + args.Timezone, nil
		},
	}
}

// calculateSpec evaluates a single binary arithmetic expression. The
// original accepted arbitrary expressions; here the surface is reduced to
// "a op b" so no expression interpreter runs on model output.
func calculateSpec() Spec {
	return Spec{
		Name:        "calculate",
		Description: "Perform math calculations",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{"type": "string"},
			},
			"required": []string{"expression"},
		},
		Handler: func(_ context.Context, raw json.RawMessage) (string, error) {
			var args struct {
				Expression string `json:"expression"`
			}
			if err := json.Unmarshal(raw, &args); err != nil {
				return "", fmt.Errorf("invalid calculate arguments: %w", err)
			}
			result, err := evalBinary(args.Expression)
			if err != nil {
				return "Invalid expression", nil
			}
			return strconv.FormatFloat(result, 'f', -1, 64), nil
		},
	}
}

func evalBinary(expr string) (float64, error) {
	expr = strings.TrimSpace(expr)
	for _, op := range []string{"+", "-", "*", "/"} {
		// Split on the last occurrence so negative left operands survive.
		idx := strings.LastIndex(expr, op)
		if idx <= 0 || idx == len(expr)-1 {
			continue
		}
		left, lerr := strconv.ParseFloat(strings.TrimSpace(expr[:idx]), 64)
		right, rerr := strconv.ParseFloat(strings.TrimSpace(expr[idx+1:]), 64)
		if lerr != nil || rerr != nil {
			continue
		}
		switch op {
		case "+":
			return left + right, nil
		case "-":
			return left - right, nil
		case "*":
			return left * right, nil
		case "/":
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		}
	}
	if v, err := strconv.ParseFloat(expr, 64); err == nil {
		return v, nil
	}
	return 0, fmt.Errorf("unsupported expression: %s", expr)
}
