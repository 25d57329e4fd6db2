package opts

import (
	"fmt"
	"strconv"
	"strings"
)

// coercion attempts to read raw text as one kind of value.
type coercion func(raw string) (any, bool)

// scalarCoercions are consulted in order; the first success wins.
var scalarCoercions = []coercion{coerceBool, coerceInt, coerceFloat}

// Coerce converts command-line or environment text into a typed value:
// bool, int, float, comma separated list, and finally the string itself.
func Coerce(raw string) any {
	if v, ok := coerceList(raw); ok {
		return v
	}
	return coerceScalar(raw)
}

func coerceScalar(raw string) any {
	s := strings.TrimSpace(raw)
	for _, c := range scalarCoercions {
		if v, ok := c(s); ok {
			return v
		}
	}
	return raw
}

func coerceBool(s string) (any, bool) {
	switch strings.ToLower(s) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return nil, false
}

func coerceInt(s string) (any, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil, false
	}
	return n, true
}

func coerceFloat(s string) (any, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return f, true
}

func coerceList(raw string) (any, bool) {
	if !strings.Contains(raw, ",") {
		return nil, false
	}
	parts := strings.Split(raw, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, coerceScalar(p))
	}
	return out, true
}

// CoerceLike converts raw text into the class of like, the value currently
// held by the field being set. Unknown classes fall back to Coerce.
func CoerceLike(like any, raw string) (any, error) {
	s := strings.TrimSpace(raw)
	switch classOf(like) {
	case classString:
		return raw, nil
	case classBool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("parse bool %q: %w", raw, err)
		}
		return b, nil
	case classInt:
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("parse int %q: %w", raw, err)
		}
		return n, nil
	case classFloat:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float %q: %w", raw, err)
		}
		return f, nil
	case classList:
		ec := elemClass(like)
		out := make([]any, 0)
		for _, p := range strings.Split(raw, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if ec == classString {
				out = append(out, p)
				continue
			}
			out = append(out, coerceScalar(p))
		}
		return out, nil
	}
	return Coerce(raw), nil
}
