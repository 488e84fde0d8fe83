package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opsforge/confsync/internal/adapter"
	"github.com/opsforge/confsync/internal/store/memory"
	"github.com/opsforge/confsync/internal/types"
)

// loadStore opens the state file, or starts an empty store when no path
// is set or the file does not exist yet.
func loadStore(path string) (*memory.Store, error) {
	if path == "" {
		return memory.New(), nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return memory.New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", path, err)
	}
	var st memory.State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", path, err)
	}
	return memory.FromState(&st), nil
}

func saveStore(path string, s *memory.Store) error {
	if path == "" {
		return nil
	}
	data, err := yaml.Marshal(s.Snapshot())
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// loadTree reads a YAML export file into a raw map tree.
func loadTree(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tree, nil
}

func loadBundle(path string) (*types.Bundle, error) {
	tree, err := loadTree(path)
	if err != nil {
		return nil, err
	}
	b, err := adapter.FromMap(tree)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}

// loadOptions reads the options file. Without one, imports create and
// update everything and delete nothing.
func loadOptions(path string) (types.Options, error) {
	opts := types.CreateUpdateOptions()
	if path == "" {
		return opts, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("read options %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("decode options %s: %w", path, err)
	}
	return opts, nil
}
