package tools

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// injectionRe catches parameter values shaped like query injection. Tool
// parameters are user-influenced through the model, so they get the same
// distrust as direct user input.
var injectionRe = regexp.MustCompile(`(?i)(;\s*(drop|delete|update|insert|alter)\b|--\s|/\*|\bunion\s+select\b|\bor\s+1\s*=\s*1\b)`)

// SanitizeParams returns a copy of params with control characters stripped
// from every string value, or an error when a value resembles an injection
// attempt. Nested objects and arrays are sanitized recursively.
func SanitizeParams(params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params))
	for key, value := range params {
		cleaned, err := sanitizeValue(key, value)
		if err != nil {
			return nil, err
		}
		out[key] = cleaned
	}
	return out, nil
}

func sanitizeValue(key string, value any) (any, error) {
	switch v := value.(type) {
	case string:
		stripped := strings.Map(func(r rune) rune {
			if unicode.IsControl(r) && r != '\n' && r != '\t' {
				return -1
			}
			return r
		}, v)
		if injectionRe.MatchString(stripped) {
			return nil, fmt.Errorf("parameter %q rejected by input sanitizer", key)
		}
		return stripped, nil
	case map[string]any:
		return SanitizeParams(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			cleaned, err := sanitizeValue(key, item)
			if err != nil {
				return nil, err
			}
			out[i] = cleaned
		}
		return out, nil
	default:
		return value, nil
	}
}

// Typed parameter accessors. JSON numbers arrive as float64; these tolerate
// the int forms tests and handwritten params use.

func stringParam(params map[string]any, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func intParam(params map[string]any, key string, fallback int) int {
	if v, ok := floatParam(params, key); ok {
		return int(v)
	}
	return fallback
}
