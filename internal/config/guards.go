package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/orbstream/internal/domain/guards"
)

// LoadGuardConfig loads the guard evaluator's threshold configuration
// (guards.GuardConfig) from a YAML file on disk.
func LoadGuardConfig(configPath string) (guards.GuardConfig, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return guards.GuardConfig{}, fmt.Errorf("read guard config: %w", err)
	}

	var cfg guards.GuardConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return guards.GuardConfig{}, fmt.Errorf("parse guard config YAML: %w", err)
	}
	return cfg, nil
}

// SaveGuardConfig writes a guards.GuardConfig to a YAML file, creating
// parent directories as needed.
func SaveGuardConfig(cfg guards.GuardConfig, configPath string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal guard config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create guard config dir: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("write guard config: %w", err)
	}
	return nil
}

// DefaultGuardConfig returns conservative baseline thresholds suitable
// for a fresh deployment with no tuned telemetry yet (spec §6's "guard
// thresholds" defaults). Range-quality bounds are left wide (a 0..0
// max disables the upper bound) until an operator tunes them per
// instrument tick size.
func DefaultGuardConfig() guards.GuardConfig {
	return guards.GuardConfig{
		SlotTiming: guards.SlotTimingConfig{
			MaxDelaySeconds: 30,
			MinDelaySeconds: 0,
		},
		RangeQuality: guards.RangeQualityConfig{
			MinWidthTicks: 2,
			MaxWidthTicks: 0, // disabled until tuned per instrument
		},
		DataFreshness: guards.DataFreshnessConfig{
			MaxGapMinutes: 10,
		},
	}
}

// GuardConfigPath returns the default on-disk location for the guard
// threshold file.
func GuardConfigPath() string {
	return filepath.Join("config", "guards.yaml")
}
