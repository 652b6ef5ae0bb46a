// Package config loads and validates the task engine's runtime
// configuration: tasks root overrides, output budgets, retention bounds,
// and evidence truncation caps.
package config

// Config is the root configuration.
type Config struct {
	TasksDir  string          `json:"tasks_dir,omitempty" mapstructure:"tasks_dir"`
	Budgets   Budgets         `json:"budgets"             mapstructure:"budgets"`
	Retention RetentionPolicy `json:"retention"           mapstructure:"retention"`
	Evidence  EvidenceConfig  `json:"evidence"            mapstructure:"evidence"`
}

// Budgets bounds the context_pack/radar/handoff output budgeting (§4.3.4).
type Budgets struct {
	DefaultMaxChars int `json:"default_max_chars,omitempty" mapstructure:"default_max_chars"`
	MaxChars        int `json:"max_chars,omitempty"          mapstructure:"max_chars"`
	MinChars        int `json:"min_chars,omitempty"          mapstructure:"min_chars"`
}

// RetentionPolicy bounds the operation history kept per tasks root.
type RetentionPolicy struct {
	MaxHistorySize int `json:"max_history_size,omitempty" mapstructure:"max_history_size"`
}

// EvidenceConfig bounds captured-artifact sizes.
type EvidenceConfig struct {
	MaxArtifactBytes int `json:"max_artifact_bytes,omitempty" mapstructure:"max_artifact_bytes"`
	RedactDepth      int `json:"redact_depth,omitempty"        mapstructure:"redact_depth"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Budgets: Budgets{
			DefaultMaxChars: 12000,
			MaxChars:        50000,
			MinChars:        1000,
		},
		Retention: RetentionPolicy{
			MaxHistorySize: 100,
		},
		Evidence: EvidenceConfig{
			MaxArtifactBytes: 256_000,
			RedactDepth:      6,
		},
	}
}

// applyDefaults fills any zero-valued field of cfg from Defaults().
func applyDefaults(cfg Config) Config {
	d := Defaults()
	if cfg.Budgets.DefaultMaxChars == 0 {
		cfg.Budgets.DefaultMaxChars = d.Budgets.DefaultMaxChars
	}
	if cfg.Budgets.MaxChars == 0 {
		cfg.Budgets.MaxChars = d.Budgets.MaxChars
	}
	if cfg.Budgets.MinChars == 0 {
		cfg.Budgets.MinChars = d.Budgets.MinChars
	}
	if cfg.Retention.MaxHistorySize == 0 {
		cfg.Retention.MaxHistorySize = d.Retention.MaxHistorySize
	}
	if cfg.Evidence.MaxArtifactBytes == 0 {
		cfg.Evidence.MaxArtifactBytes = d.Evidence.MaxArtifactBytes
	}
	if cfg.Evidence.RedactDepth == 0 {
		cfg.Evidence.RedactDepth = d.Evidence.RedactDepth
	}
	return cfg
}
