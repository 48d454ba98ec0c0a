package plugin

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads the plugins section of the schema file. An empty path means
// no plugins.
func LoadFile(path string) ([]Plugin, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plugin file: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) ([]Plugin, error) {
	var doc struct {
		Plugins []*Static `yaml:"plugins"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse plugins: %w", err)
	}
	out := make([]Plugin, 0, len(doc.Plugins))
	for i, p := range doc.Plugins {
		if p.PluginName == "" {
			return nil, fmt.Errorf("plugin %d has no name", i)
		}
		out = append(out, p)
	}
	return out, nil
}
