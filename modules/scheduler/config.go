package scheduler

import (
	"fmt"
	"time"

	"github.com/Deepreo/kronos/core"
)

const DefaultShutdownTimeout = 30 * time.Second

type Config struct {
	Workers          int    `mapstructure:"workers"`
	MisfireThreshold string `mapstructure:"misfire_threshold"`
	ShutdownTimeout  string `mapstructure:"shutdown_timeout"`
	Timezone         string `mapstructure:"timezone"`
	DefaultGroup     string `mapstructure:"default_group"`
	MisfirePolicy    string `mapstructure:"misfire_policy"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		MisfireThreshold: DefaultMisfireThreshold.String(),
		ShutdownTimeout:  DefaultShutdownTimeout.String(),
		DefaultGroup:     core.DefaultGroup,
		MisfirePolicy:    string(core.MisfireIgnore),
	}
}

// Options converts cfg into scheduler options. Empty fields keep the defaults.
func (cfg Config) Options() ([]Option, error) {
	opts := []Option{WithWorkers(cfg.Workers)}

	if cfg.MisfireThreshold != "" {
		d, err := time.ParseDuration(cfg.MisfireThreshold)
		if err != nil {
			return nil, fmt.Errorf("invalid misfire_threshold: %s", cfg.MisfireThreshold)
		}
		opts = append(opts, WithMisfireThreshold(d))
	}
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid timezone: %s", cfg.Timezone)
		}
		opts = append(opts, WithLocation(loc))
	}
	if cfg.DefaultGroup != "" {
		opts = append(opts, WithDefaultGroup(cfg.DefaultGroup))
	}
	policy, err := core.ParseMisfirePolicy(cfg.MisfirePolicy)
	if err != nil {
		return nil, err
	}
	opts = append(opts, WithDefaultMisfirePolicy(policy))
	return opts, nil
}

// ShutdownTimeoutDuration parses ShutdownTimeout, falling back to DefaultShutdownTimeout.
func (cfg Config) ShutdownTimeoutDuration() (time.Duration, error) {
	if cfg.ShutdownTimeout == "" {
		return DefaultShutdownTimeout, nil
	}
	d, err := time.ParseDuration(cfg.ShutdownTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid shutdown_timeout: %s", cfg.ShutdownTimeout)
	}
	if d < 0 {
		return 0, fmt.Errorf("shutdown_timeout must not be negative, got %s", d)
	}
	return d, nil
}
