package extract

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Decode extracts JSON from text and unmarshals it into T. Malformed JSON is
// passed through jsonrepair once. On failure fallback is returned with the
// parse error so callers can log it and carry on.
func Decode[T any](text string, fallback T) (T, error) {
	prefer := ShapeObject
	switch reflect.TypeOf((*T)(nil)).Elem().Kind() {
	case reflect.Slice, reflect.Array:
		prefer = ShapeArray
	}
	return decodeShape(text, prefer, fallback)
}

// DecodeList decodes an array of T. A bare object is coerced into a
// single-element list.
func DecodeList[T any](text string, fallback []T) ([]T, error) {
	raw, err := decodeShape[json.RawMessage](text, ShapeArray, nil)
	if err != nil {
		return fallback, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '{' {
		var single T
		if err := json.Unmarshal(raw, &single); err != nil {
			return fallback, fmt.Errorf("decode object: %w", err)
		}
		return []T{single}, nil
	}
	var out []T
	if err := json.Unmarshal(raw, &out); err != nil {
		return fallback, fmt.Errorf("decode list: %w", err)
	}
	if out == nil {
		return fallback, nil
	}
	return out, nil
}

// DecodeObject decodes an object of T. When the payload is a bare array its
// elements are decoded as E and handed to wrap instead.
func DecodeObject[T, E any](text string, fallback T, wrap func([]E) T) (T, error) {
	candidate := Object(text)
	if wrap != nil && strings.HasPrefix(candidate, "[") {
		if items, err := DecodeList[E](candidate, nil); err == nil {
			return wrap(items), nil
		}
	}
	return decodeShape(text, ShapeObject, fallback)
}

func decodeShape[T any](text string, prefer Shape, fallback T) (T, error) {
	candidate := Extract(text, prefer)
	if candidate == "" {
		return fallback, fmt.Errorf("no JSON content found")
	}

	var out T
	err := json.Unmarshal([]byte(candidate), &out)
	if err == nil {
		return out, nil
	}

	repaired, repairErr := jsonrepair.JSONRepair(candidate)
	if repairErr != nil {
		return fallback, fmt.Errorf("parse JSON: %w", err)
	}
	var again T
	if err := json.Unmarshal([]byte(repaired), &again); err != nil {
		return fallback, fmt.Errorf("parse repaired JSON: %w", err)
	}
	return again, nil
}
