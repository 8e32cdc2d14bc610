package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/i474232898/cycle-tracker/internal/cycle"
)

// PredictionConfig is the YAML prediction policy file.
//
//	prediction:
//	  enabled: true
//	  window_days: 5
//	  history_cycles: 3
//	  default_cycle_days: 28
//	  require_completed_cycle: false
type PredictionConfig struct {
	Prediction PredictionPolicy `yaml:"prediction"`
}

type PredictionPolicy struct {
	Enabled               bool `yaml:"enabled"`
	WindowDays            int  `yaml:"window_days"`
	HistoryCycles         int  `yaml:"history_cycles"`
	DefaultCycleDays      int  `yaml:"default_cycle_days"`
	RequireCompletedCycle bool `yaml:"require_completed_cycle"`
}

// LoadPolicy reads and validates a policy file. Absent fields keep their defaults.
func LoadPolicy(path string) (*PredictionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaultPolicyConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	if err := validatePolicy(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func defaultPolicyConfig() *PredictionConfig {
	p := cycle.DefaultPolicy()
	return &PredictionConfig{Prediction: PredictionPolicy{
		Enabled:               p.Enabled,
		WindowDays:            p.WindowDays,
		HistoryCycles:         p.HistoryCycles,
		DefaultCycleDays:      p.DefaultCycleDays,
		RequireCompletedCycle: p.RequireCompletedCycle,
	}}
}

func validatePolicy(cfg *PredictionConfig) error {
	p := cfg.Prediction
	if p.WindowDays < 1 || p.WindowDays > 14 {
		return fmt.Errorf("prediction.window_days must be between 1 and 14")
	}
	if p.HistoryCycles < 1 {
		return fmt.Errorf("prediction.history_cycles must be positive")
	}
	if p.DefaultCycleDays < 1 {
		return fmt.Errorf("prediction.default_cycle_days must be positive")
	}
	return nil
}

// Policy converts the file into the policy the cycle service applies.
func (c *PredictionConfig) Policy() cycle.Policy {
	return cycle.Policy{
		Enabled:               c.Prediction.Enabled,
		WindowDays:            c.Prediction.WindowDays,
		HistoryCycles:         c.Prediction.HistoryCycles,
		DefaultCycleDays:      c.Prediction.DefaultCycleDays,
		RequireCompletedCycle: c.Prediction.RequireCompletedCycle,
	}
}
