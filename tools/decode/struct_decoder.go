package decode

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Options tunes DecodeMap.
type Options struct {
	// WeaklyTypedInput lets "true" decode into bool, "12" into int and so on.
	// Browser clients are not strict about frame payload types.
	WeaklyTypedInput bool
	// ErrorUnused rejects payload keys the target struct does not declare.
	ErrorUnused bool
}

func DefaultOptions() Options {
	return Options{
		WeaklyTypedInput: true,
	}
}

// DecodeMap decodes a loosely typed JSON object into T using `json` tags.
func DecodeMap[T any](m map[string]any, opts ...Options) (*T, error) {
	if m == nil {
		return nil, fmt.Errorf("payload is nil")
	}

	cfg := DefaultOptions()
	if len(opts) > 0 {
		cfg = opts[0]
	}

	var out T
	decCfg := &mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &out,
		WeaklyTypedInput: cfg.WeaklyTypedInput,
		ErrorUnused:      cfg.ErrorUnused,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			floatToIntHook(),
			jsonRawStringToMapHook(),
		),
	}

	dec, err := mapstructure.NewDecoder(decCfg)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &out, nil
}

// ReadString reads a string field from a loosely typed object.
func ReadString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing field %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("field %q not string (got %T)", key, v)
	}
	return s, nil
}

// floatToIntHook turns JSON numbers (float64) into integer kinds.
func floatToIntHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.Float64 {
			return data, nil
		}
		switch to {
		case reflect.Int:
			return int(data.(float64)), nil
		case reflect.Int32:
			return int32(data.(float64)), nil
		case reflect.Int64:
			return int64(data.(float64)), nil
		}
		return data, nil
	}
}

// jsonRawStringToMapHook accepts an object that a client double-encoded as a
// JSON string.
func jsonRawStringToMapHook() mapstructure.DecodeHookFunc {
	return func(from, to reflect.Kind, data any) (any, error) {
		if from != reflect.String || to != reflect.Map {
			return data, nil
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(data.(string)), &m); err == nil {
			return m, nil
		}
		return data, nil
	}
}
