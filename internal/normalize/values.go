package normalize

import (
	"strings"

	"github.com/spf13/cast"
)

// record is one decoded JSON object with alias-aware accessors.
type record map[string]any

func asRecord(v any) (record, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return record(m), true
}

// first returns the first populated value among keys. Blank strings count as absent.
func (r record) first(keys []string) (any, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// str returns the first scalar value among keys as a trimmed string.
func (r record) str(keys []string) string {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch v.(type) {
		case map[string]any, []any, bool:
			continue
		}
		s, err := cast.ToStringE(v)
		if err != nil {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

// float returns the first numeric (or numeric-string) value among keys.
func (r record) float(keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

// sub returns the first nested object among keys.
func (r record) sub(keys []string) (record, bool) {
	for _, k := range keys {
		if m, ok := asRecord(r[k]); ok {
			return m, true
		}
	}
	return nil, false
}

// list returns the first array among keys.
func (r record) list(keys []string) ([]any, bool) {
	for _, k := range keys {
		if arr, ok := r[k].([]any); ok {
			return arr, true
		}
	}
	return nil, false
}

// flag returns the first boolean-ish value among keys.
func (r record) flag(keys []string) (bool, bool) {
	for _, k := range keys {
		v, ok := r[k]
		if !ok || v == nil {
			continue
		}
		switch t := v.(type) {
		case bool:
			return t, true
		case float64:
			if t == 0 || t == 1 {
				return t == 1, true
			}
		case string:
			if b, err := cast.ToBoolE(strings.TrimSpace(t)); err == nil {
				return b, true
			}
		}
	}
	return false, false
}

// has reports whether any of keys is present with a non-nil value.
func (r record) has(keys []string) bool {
	_, ok := r.first(keys)
	return ok
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case bool, map[string]any, []any:
		return 0, false
	case string:
		v = strings.TrimSpace(t)
		if v == "" {
			return 0, false
		}
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, false
	}
	return f, true
}
