package worker

import (
	"time"

	"github.com/smallbiznis/formmetrics/internal/config"
)

// Config controls the population worker loop.
type Config struct {
	Enabled      bool
	BatchSize    int
	Concurrency  int
	PollInterval time.Duration
	RunTimeout   time.Duration
	RowTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:      true,
		BatchSize:    50,
		Concurrency:  4,
		PollInterval: 15 * time.Second,
		RunTimeout:   2 * time.Minute,
		RowTimeout:   30 * time.Second,
	}
}

// ConfigFromHolder reads the worker section of the population config.
func ConfigFromHolder(holder *config.PopulationConfigHolder) Config {
	w := holder.Get().Worker
	return Config{
		Enabled:      w.Enabled,
		BatchSize:    w.BatchSize,
		Concurrency:  w.Concurrency,
		PollInterval: w.PollInterval,
		RunTimeout:   w.RunTimeout,
		RowTimeout:   w.RowTimeout,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaults.Concurrency
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaults.PollInterval
	}
	if c.RunTimeout <= 0 {
		c.RunTimeout = defaults.RunTimeout
	}
	if c.RowTimeout <= 0 {
		c.RowTimeout = defaults.RowTimeout
	}
	return c
}
