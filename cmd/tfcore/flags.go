package main

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/tfcore/engine"
)

// applyFlagsFile sets engine flags from a YAML mapping such as
//
//	DEBUG: true
//	NUM_WORKERS: 4
//
// Numbers are stored as float64, matching TFCORE_FLAGS overrides.
func applyFlagsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read flags file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse flags file %s: %w", path, err)
	}

	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		var value any
		switch v := raw[name].(type) {
		case bool:
			value = v
		case int:
			value = float64(v)
		case float64:
			value = v
		default:
			return fmt.Errorf("flag %s in %s must be a bool or a number, got %T", name, path, v)
		}
		if err := engine.SetFlag(name, value); err != nil {
			return err
		}
	}
	return nil
}
