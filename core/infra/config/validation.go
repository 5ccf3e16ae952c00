package config

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// validateStorageDocument checks the raw storages document before it is
// decoded into typed structs, so unknown keys and wrong scalar types fail
// instead of being dropped or zeroed by the decoder.
func validateStorageDocument(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse storage config: %w", err)
	}
	if doc == nil {
		return errors.New("storage config is empty")
	}
	if err := storagesSchema.Validate(doc); err != nil {
		return fmt.Errorf("validate storage config: %w", err)
	}
	return nil
}
