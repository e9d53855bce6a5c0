package culfw

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Command parameters arrive decoded from JSON, so numbers are usually
// float64 but may also be strings typed by an operator.

func paramFloat(params map[string]any, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", ErrInvalidParameter, key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %s: %w", ErrInvalidParameter, key, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s is not a number", ErrInvalidParameter, key)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: %s has type %T", ErrInvalidParameter, key, raw)
	}
}

func paramInt(params map[string]any, key string) (int, error) {
	f, err := paramFloat(params, key)
	if err != nil {
		return 0, err
	}
	if f != float64(int(f)) {
		return 0, fmt.Errorf("%w: %s must be a whole number", ErrInvalidParameter, key)
	}
	return int(f), nil
}

func paramString(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", fmt.Errorf("%w: %s is required", ErrInvalidParameter, key)
	}
	s, ok := raw.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: %s must be a non-empty string", ErrInvalidParameter, key)
	}
	return strings.TrimSpace(s), nil
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

// paramWeekday accepts a weekday name or its number (0 = Sunday).
func paramWeekday(params map[string]any, key string) (time.Weekday, error) {
	if s, ok := params[key].(string); ok {
		if d, ok := weekdays[strings.ToLower(strings.TrimSpace(s))]; ok {
			return d, nil
		}
	}
	n, err := paramInt(params, key)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("%w: %s must be a weekday", ErrInvalidParameter, key)
	}
	return time.Weekday(n), nil
}
