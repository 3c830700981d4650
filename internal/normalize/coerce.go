package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Coercion helpers. Snapshots come from a remote process we do not control,
// so every accessor degrades to a zero-ish fallback instead of failing.

func asStr(x any, fallback string) string {
	var s string
	switch v := x.(type) {
	case nil:
	case string:
		s = v
	case float64:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		s = v.String()
	case bool:
		s = strconv.FormatBool(v)
	case int:
		s = strconv.Itoa(v)
	case int64:
		s = strconv.FormatInt(v, 10)
	}
	if s == "" {
		return fallback
	}
	return s
}

func asNum(x any, fallback float64) float64 {
	var f float64
	switch v := x.(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return fallback
		}
		f = n
	case bool:
		if v {
			return 1
		}
		return 0
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return 0
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fallback
		}
		f = n
	default:
		return fallback
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fallback
	}
	return f
}

func asInt(x any, fallback int) int {
	return int(asNum(x, float64(fallback)))
}

// asBool follows JavaScript truthiness, which is what snapshot producers assume.
func asBool(x any) bool {
	switch v := x.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0 && !math.IsNaN(v)
	case int:
		return v != 0
	case int64:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err == nil && f != 0
	case string:
		return v != ""
	}
	return true
}

func asMap(x any) map[string]any {
	m, _ := x.(map[string]any)
	return m
}

func asSlice(x any) ([]any, bool) {
	s, ok := x.([]any)
	return s, ok
}

// field walks nested objects; a missing step yields nil.
func field(m map[string]any, path ...string) any {
	var cur any = m
	for _, key := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[key]
	}
	return cur
}

// first returns the first non-nil value.
func first(vals ...any) any {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}
