package statestore

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeAdditionalState decodes a Checkpoint's opaque AdditionalState map
// into a caller-supplied typed struct pointed to by out. It is exported
// for callers outside the module; no package in this module calls it.
func DecodeAdditionalState(raw map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "json",
	})
	if err != nil {
		return fmt.Errorf("statestore: build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return fmt.Errorf("statestore: decode additional state: %w", err)
	}
	return nil
}
