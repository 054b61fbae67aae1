package tool

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	contractx "github.com/tanpawarit/chative-commerce/agent/contract"
)

type argError struct {
	msg string
}

func (e argError) Error() string { return e.msg }

func invalidArg(tool string, err error) contractx.ToolResult {
	return contractx.FailedResult(tool, contractx.CodeInvalidArgument, err.Error())
}

func stringArg(args map[string]any, key string, required bool) (string, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return "", argError{msg: key + " is required"}
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		s = fmt.Sprint(raw)
	}
	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", argError{msg: key + " is required"}
	}
	return s, nil
}

// intArg accepts JSON numbers, Go ints and numeric strings. Missing keys return def.
func intArg(args map[string]any, key string, def int, required bool) (int, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		if required {
			return 0, argError{msg: key + " is required"}
		}
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, argError{msg: key + " must be a whole number"}
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, argError{msg: key + " must be a number"}
		}
		return n, nil
	default:
		return 0, argError{msg: fmt.Sprintf("%s has unsupported type %T", key, raw)}
	}
}
