// Package attr coerces loosely typed host values (config scalars, JSON
// command values, form strings) into the typed values bindings accept.
package attr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrAbsent is returned for nil values; callers leave the attribute unchanged.
	ErrAbsent  = errors.New("attr: no value")
	ErrInvalid = errors.New("attr: invalid value")
)

// Float accepts numbers and numeric strings. A string may carry trailing
// text after the number ("1.5x" reads 1.5).
func Float(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return 0, ErrAbsent
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		return parseFloatPrefix(x)
	}
	return 0, fmt.Errorf("%w: %T is not a number", ErrInvalid, v)
}

// Int accepts integers, whole floats and integer strings. Floats and numeric
// strings are truncated toward zero.
func Int(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, ErrAbsent
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float64:
		return int(x), nil
	case float32:
		return int(x), nil
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return int(i), nil
		}
		f, err := x.Float64()
		return int(f), err
	case string:
		f, err := parseFloatPrefix(x)
		return int(f), err
	}
	return 0, fmt.Errorf("%w: %T is not an integer", ErrInvalid, v)
}

// Bool treats a present but empty attribute as true.
func Bool(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, ErrAbsent
	case bool:
		return x, nil
	case string:
		switch strings.TrimSpace(strings.ToLower(x)) {
		case "", "true":
			return true, nil
		case "false":
			return false, nil
		}
		return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalid, x)
	}
	return false, fmt.Errorf("%w: %T is not a boolean", ErrInvalid, v)
}

// String accepts strings and formats numbers.
func String(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", ErrAbsent
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(x), nil
	}
	return "", fmt.Errorf("%w: %T is not a string", ErrInvalid, v)
}

// parseFloatPrefix reads the longest leading decimal number of s.
func parseFloatPrefix(s string) (float64, error) {
	s = strings.TrimSpace(s)
	end := 0
	seenDigit, seenDot, seenExp := false, false, false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case ch >= '0' && ch <= '9':
			seenDigit = true
			end = i + 1
		case (ch == '+' || ch == '-') && (i == 0 || s[i-1] == 'e' || s[i-1] == 'E'):
		case ch == '.' && !seenDot && !seenExp:
			seenDot = true
		case (ch == 'e' || ch == 'E') && seenDigit && !seenExp:
			seenExp = true
		default:
			i = len(s)
		}
	}
	if !seenDigit {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalid, s)
	}
	f, err := strconv.ParseFloat(s[:end], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalid, s, err)
	}
	return f, nil
}
