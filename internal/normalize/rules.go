// Package normalize extracts cross-cutting fields from heterogeneous quiz
// service responses. Nothing here returns an error: a shape that cannot be
// interpreted yields an absent value and the caller decides how to degrade.
package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Object is a decoded JSON object.
type Object = map[string]any

// rule is one row of an extraction table: where to look and how to accept.
type rule[T any] struct {
	path  []string
	guard func(any) (T, bool)
}

// table builds the rows for every location in order, then every key spelling.
func table[T any](locations [][]string, keys []string, guard func(any) (T, bool)) []rule[T] {
	rows := make([]rule[T], 0, len(locations)*len(keys))
	for _, loc := range locations {
		for _, k := range keys {
			path := make([]string, 0, len(loc)+1)
			path = append(path, loc...)
			path = append(path, k)
			rows = append(rows, rule[T]{path: path, guard: guard})
		}
	}
	return rows
}

// first evaluates rows top to bottom and returns the first accepted value.
func first[T any](obj Object, rows []rule[T]) (T, bool) {
	var zero T
	if obj == nil {
		return zero, false
	}
	for _, r := range rows {
		raw, ok := lookup(obj, r.path)
		if !ok {
			continue
		}
		if v, ok := r.guard(raw); ok {
			return v, true
		}
	}
	return zero, false
}

func lookup(obj Object, path []string) (any, bool) {
	var cur any = obj
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// ─── Type guards ───────────────────────────────────────────────────────────

func asFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f != math.Trunc(f) {
		return 0, false
	}
	return int(f), true
}

func asCount(v any) (int, bool) {
	n, ok := asInt(v)
	return n, ok && n >= 0
}

func asOrdinal(v any) (int, bool) {
	n, ok := asInt(v)
	return n, ok && n >= 1
}

// asSeconds accepts fractional seconds and floors them.
func asSeconds(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok || f < 0 {
		return 0, false
	}
	return int(math.Floor(f)), true
}

func asPassScore(v any) (float64, bool) {
	f, ok := asFloat(v)
	return f, ok && f >= 0 && f <= 1000
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
		return false, false
	case float64, float32, int, int32, int64, json.Number:
		f, ok := asFloat(b)
		if !ok {
			return false, false
		}
		switch f {
		case 1:
			return true, true
		case 0:
			return false, true
		}
	}
	return false, false
}

func asID(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		s = strings.TrimSpace(s)
		return s, s != ""
	default:
		n, ok := asInt(v)
		if !ok || n < 0 {
			return "", false
		}
		return strconv.Itoa(n), true
	}
}

func asTime(v any) (time.Time, bool) {
	if s, ok := v.(string); ok {
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
			if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
				return t, true
			}
		}
	}
	f, ok := asFloat(v)
	if !ok || f <= 0 {
		return time.Time{}, false
	}
	// Values this large are milliseconds.
	if f > 1e12 {
		return time.UnixMilli(int64(f)), true
	}
	return time.Unix(int64(f), 0), true
}
