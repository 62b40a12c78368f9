package parser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// compactUnits maps trailing magnitude suffixes to multipliers. The platform
// mixes plain integers, thousands separators and CJK compact notation in the
// same fields.
var compactUnits = map[string]float64{
	"万": 1e4,
	"亿": 1e8,
	"w": 1e4,
	"W": 1e4,
	"k": 1e3,
	"K": 1e3,
	"m": 1e6,
	"M": 1e6,
}

// ParseCount normalizes a loosely formatted numeric field to an int64.
// Upstream formatting is inconsistent; unparseable input yields 0, never an
// error.
func ParseCount(v any) int64 {
	return ParseCountDefault(v, 0)
}

// ParseCountDefault is ParseCount with a configurable fallback.
func ParseCountDefault(v any, def int64) int64 {
	switch n := v.(type) {
	case nil:
		return def
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	case json.Number:
		return parseCountString(n.String(), def)
	case string:
		return parseCountString(n, def)
	default:
		return def
	}
}

func parseCountString(s string, def int64) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}

	// Drop trailing annotations like "(avg/chapter)".
	if i := strings.IndexAny(s, "(（"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}

	multiplier := 1.0
	for unit, m := range compactUnits {
		if strings.HasSuffix(s, unit) {
			multiplier = m
			s = strings.TrimSuffix(s, unit)
			break
		}
	}

	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}

	return int64(f * multiplier)
}

// asID normalizes a platform identifier to its string form. Numeric IDs lose
// any float formatting.
func asID(v any) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// asFloat extracts an optional float field.
func asFloat(v any) *float64 {
	switch f := v.(type) {
	case float64:
		return &f
	case json.Number:
		parsed, err := f.Float64()
		if err != nil {
			return nil
		}
		return &parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil
		}
		return &parsed
	default:
		return nil
	}
}

// asString extracts an optional string field.
func asString(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
