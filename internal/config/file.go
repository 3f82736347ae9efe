package config

import (
    "fmt"
    "os"

    "gopkg.in/yaml.v3"
)

// ApplyFile overlays a YAML file on top of cfg. Keys absent from the file keep
// their current (environment or default) value. Secrets are never read from the file.
func ApplyFile(path string, cfg *Config) error {
    data, err := os.ReadFile(path)
    if err != nil {
        return fmt.Errorf("read config %s: %w", path, err)
    }
    if err := yaml.Unmarshal(data, cfg); err != nil {
        return fmt.Errorf("parse config %s: %w", path, err)
    }
    return nil
}
