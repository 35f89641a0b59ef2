package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// PopulationConfig holds the tunables of the metric population engine and its worker.
type PopulationConfig struct {
	Worker WorkerConfig `mapstructure:"worker"`
	Engine EngineConfig `mapstructure:"engine"`
}

type WorkerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	BatchSize    int           `mapstructure:"batchSize"`
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"pollInterval"`
	RunTimeout   time.Duration `mapstructure:"runTimeout"`
	RowTimeout   time.Duration `mapstructure:"rowTimeout"`
}

type EngineConfig struct {
	LockTTL              time.Duration `mapstructure:"lockTTL"`
	DefaultExpectedValue string        `mapstructure:"defaultExpectedValue"`
}

func DefaultPopulationConfig() PopulationConfig {
	return PopulationConfig{
		Worker: WorkerConfig{
			Enabled:      true,
			BatchSize:    50,
			Concurrency:  4,
			PollInterval: 15 * time.Second,
			RunTimeout:   2 * time.Minute,
			RowTimeout:   30 * time.Second,
		},
		Engine: EngineConfig{
			LockTTL:              time.Minute,
			DefaultExpectedValue: "Yes",
		},
	}
}

type PopulationConfigHolder struct {
	current atomic.Value // holds PopulationConfig
}

// NewStaticPopulationConfigHolder returns a holder that never reloads.
func NewStaticPopulationConfigHolder(cfg PopulationConfig) *PopulationConfigHolder {
	holder := &PopulationConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewPopulationConfigHolder() (*PopulationConfigHolder, error) {
	return newPopulationConfigHolder(viper.New(), "/etc/formmetrics", ".")
}

func newPopulationConfigHolder(v *viper.Viper, paths ...string) (*PopulationConfigHolder, error) {
	v.SetConfigName("population")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	v.SetEnvPrefix("FORMMETRICS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPopulationConfig()
	v.SetDefault("population.worker.enabled", defaults.Worker.Enabled)
	v.SetDefault("population.worker.batchSize", defaults.Worker.BatchSize)
	v.SetDefault("population.worker.concurrency", defaults.Worker.Concurrency)
	v.SetDefault("population.worker.pollInterval", defaults.Worker.PollInterval)
	v.SetDefault("population.worker.runTimeout", defaults.Worker.RunTimeout)
	v.SetDefault("population.worker.rowTimeout", defaults.Worker.RowTimeout)
	v.SetDefault("population.engine.lockTTL", defaults.Engine.LockTTL)
	v.SetDefault("population.engine.defaultExpectedValue", defaults.Engine.DefaultExpectedValue)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	var cfg PopulationConfig
	if err := v.UnmarshalKey("population", &cfg); err != nil {
		return nil, err
	}
	if err := validatePopulationConfig(cfg); err != nil {
		return nil, err
	}

	holder := &PopulationConfigHolder{}
	holder.current.Store(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated PopulationConfig
			if err := v.UnmarshalKey("population", &updated); err != nil {
				log.Printf("[population-config] reload failed: %v", err)
				return
			}
			if err := validatePopulationConfig(updated); err != nil {
				log.Printf("[population-config] invalid config ignored: %v", err)
				return
			}
			holder.current.Store(updated)
			log.Printf("[population-config] reloaded from %s", e.Name)
		})
	}

	return holder, nil
}

func (h *PopulationConfigHolder) Get() PopulationConfig {
	if h == nil {
		return DefaultPopulationConfig()
	}
	return h.current.Load().(PopulationConfig)
}

func validatePopulationConfig(cfg PopulationConfig) error {
	if cfg.Worker.BatchSize <= 0 {
		return errors.New("population.worker.batchSize must be positive")
	}
	if cfg.Worker.Concurrency <= 0 {
		return errors.New("population.worker.concurrency must be positive")
	}
	if cfg.Worker.PollInterval <= 0 {
		return errors.New("population.worker.pollInterval must be positive")
	}
	if cfg.Engine.LockTTL <= 0 {
		return errors.New("population.engine.lockTTL must be positive")
	}
	if strings.TrimSpace(cfg.Engine.DefaultExpectedValue) == "" {
		return errors.New("population.engine.defaultExpectedValue cannot be empty")
	}
	return nil
}
