package domain

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// Decode reads key from s as T. Values that went through a JSON round trip
// (maps, []any, float64) are decoded into T using its json tags.
// A missing key yields the zero value of T.
func Decode[T any](s State, key string) (T, error) {
	var out T
	raw, ok := s.Get(key)
	if !ok || raw == nil {
		return out, nil
	}
	if typed, ok := raw.(T); ok {
		return typed, nil
	}
	if err := DecodeValue(raw, &out); err != nil {
		return out, fmt.Errorf("failed to decode state field %q: %w", key, err)
	}
	return out, nil
}

// DecodeValue decodes a loosely typed value into target using json tags.
func DecodeValue(raw any, target any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}
