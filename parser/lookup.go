package parser

import (
	"strconv"
)

type number interface {
	Int64() (int64, error)
	Float64() (float64, error)
	String() string
}

// Lookup walks doc along keys. String keys index objects, int keys index
// arrays. It reports false on any missing key, null intermediate, type
// mismatch or out-of-range index.
func Lookup(doc any, keys ...any) (any, bool) {
	cur := doc
	for _, key := range keys {
		switch k := key.(type) {
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[k]
			if !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]any)
			if !ok || k < 0 || k >= len(arr) {
				return nil, false
			}
			cur = arr[k]
		default:
			return nil, false
		}
		if cur == nil {
			return nil, false
		}
	}
	return cur, true
}

// String looks up a text value. Numbers are rendered in their literal form.
func String(doc any, keys ...any) *string {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case string:
		return &t
	case number:
		s := t.String()
		return &s
	case bool:
		s := strconv.FormatBool(t)
		return &s
	case float64:
		s := strconv.FormatFloat(t, 'f', -1, 64)
		return &s
	}
	return nil
}

// Int looks up an integer value. Numeric strings are accepted.
func Int(doc any, keys ...any) *int64 {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case number:
		if n, err := t.Int64(); err == nil {
			return &n
		}
		if f, err := t.Float64(); err == nil {
			n := int64(f)
			return &n
		}
	case float64:
		n := int64(t)
		return &n
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return &n
		}
	}
	return nil
}

// Float looks up a numeric value. Numeric strings are accepted.
func Float(doc any, keys ...any) *float64 {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case number:
		if f, err := t.Float64(); err == nil {
			return &f
		}
	case float64:
		return &t
	case string:
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return &f
		}
	}
	return nil
}

// Bool looks up a boolean value.
func Bool(doc any, keys ...any) *bool {
	v, ok := Lookup(doc, keys...)
	if !ok {
		return nil
	}
	if b, ok := v.(bool); ok {
		return &b
	}
	return nil
}
