package store

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// AliasManifest is the on-disk, YAML-encoded alias->hash binding set a
// deployment ships alongside its compiled pipeline images, so a process
// restart can re-establish human-readable names without recompiling.
type AliasManifest struct {
	Aliases []AliasBinding `yaml:"aliases"`
}

// AliasBinding is one entry of an AliasManifest.
type AliasBinding struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// LoadAliasManifest reads and parses an AliasManifest from path.
func LoadAliasManifest(path string) (*AliasManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading alias manifest %s: %w", path, err)
	}
	var m AliasManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing alias manifest %s: %w", path, err)
	}
	return &m, nil
}

// ImportAliases loads path and binds every entry into the store. A
// binding naming a hash not yet Put is recorded anyway — it resolves
// once the image arrives, matching Alias's own contract.
func (s *Store) ImportAliases(path string) error {
	m, err := LoadAliasManifest(path)
	if err != nil {
		return err
	}
	for _, b := range m.Aliases {
		s.Alias(b.Name, b.Hash)
	}
	return nil
}

// ExportManifest writes the store's current alias bindings to path as
// YAML, the inverse of ImportAliases.
func (s *Store) ExportManifest(path string) error {
	m := AliasManifest{}
	for _, a := range s.ListAliases() {
		m.Aliases = append(m.Aliases, AliasBinding{Name: a.Name, Hash: a.Hash})
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling alias manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing alias manifest %s: %w", path, err)
	}
	return nil
}
