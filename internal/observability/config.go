package observability

import (
	"strings"
	"time"

	"github.com/smallbiznis/formmetrics/internal/config"
	"github.com/smallbiznis/formmetrics/internal/observability/logger"
	"github.com/smallbiznis/formmetrics/internal/observability/metrics"
	"github.com/smallbiznis/formmetrics/internal/observability/tracing"
	gormlogger "gorm.io/gorm/logger"
)

// Config is the observability slice of the application config. Each method
// below hands one subsystem its own settings.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled       bool
	OTLPEndpoint      string
	OTLPProtocol      string
	OtelSamplingRatio float64

	DBLogLevel  string
	DBSlowQuery time.Duration

	debug bool
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "formmetrics"
	}
	return Config{
		ServiceName:       serviceName,
		Environment:       strings.TrimSpace(cfg.Environment),
		Version:           strings.TrimSpace(cfg.AppVersion),
		LogLevel:          cfg.LogLevel,
		LogFormat:         cfg.LogFormat,
		OtelEnabled:       cfg.OtelEnabled,
		OTLPEndpoint:      strings.TrimSpace(cfg.OTLPEndpoint),
		OTLPProtocol:      cfg.OTLPProtocol,
		OtelSamplingRatio: cfg.OtelSamplingRatio,
		DBLogLevel:        cfg.DBLogLevel,
		DBSlowQuery:       cfg.DBSlowQuery,
		debug:             cfg.Debug(),
	}
}

func (c Config) Debug() bool { return c.debug }

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.debug,
		IncludeCaller:       true,
		IncludeStackOnError: c.debug,
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.OTLPProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.OTLPProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

// Gorm maps DATABASE_LOG_LEVEL onto gorm levels; unknown values mean warn.
func (c Config) Gorm() logger.GormLoggerConfig {
	cfg := logger.DefaultGormLoggerConfig()
	switch strings.ToLower(strings.TrimSpace(c.DBLogLevel)) {
	case "silent":
		cfg.Level = gormlogger.Silent
	case "error":
		cfg.Level = gormlogger.Error
	case "info":
		cfg.Level = gormlogger.Info
	}
	if c.DBSlowQuery > 0 {
		cfg.SlowThreshold = c.DBSlowQuery
	}
	return cfg
}
