package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads config from path (if non-empty and present), validates it
// against the embedded schema, and fills any field the file omitted from
// Defaults(). A missing path is not an error: Load returns Defaults().
func Load(path string) (Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Defaults(), nil
		}
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	var rawSettings map[string]any
	if err := yaml.Unmarshal(raw, &rawSettings); err != nil {
		return Config{}, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := ValidateSettings(rawSettings); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(raw)); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return applyDefaults(cfg), nil
}
