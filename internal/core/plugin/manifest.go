package plugin

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const MANIFEST_FILE = "plugin.yaml"

var ErrManifestNotFound = errors.New("plugin manifest not found")

// Manifest is the plugin.yaml found at the root of every plugin directory.
type Manifest struct {
	Name         string        `yaml:"name" json:"name"`
	Alias        string        `yaml:"alias" json:"alias"`
	Creator      string        `yaml:"creator" json:"creator"`
	Runtime      RuntimeConfig `yaml:"runtime" json:"runtime"`
	Repository   string        `yaml:"repository" json:"repository"`
	Description  string        `yaml:"description" json:"description"`
	Version      string        `yaml:"version" json:"version"`
	Requirements []Requirement `yaml:"requirements" json:"requirements,omitempty"`
}

type RuntimeConfig struct {
	// entry point id, resolved against the Catalog
	Main  string   `yaml:"main" json:"main"`
	Tests []string `yaml:"tests" json:"tests,omitempty"`
}

// Requirement asks for another plugin at a minimum version.
type Requirement struct {
	Name    string `yaml:"name" json:"name"`
	Version string `yaml:"version" json:"version"`
}

func (r Requirement) String() string {
	return fmt.Sprintf("%s>=%s", r.Name, r.Version)
}

func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	if m.Name == "" {
		return nil, errors.New("invalid manifest: name is required")
	}
	return &m, nil
}

// LoadManifest reads the manifest of the plugin rooted at dir.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, MANIFEST_FILE))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrManifestNotFound
		}
		return nil, err
	}
	return ParseManifest(data)
}
