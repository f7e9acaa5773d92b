// Package config loads application configuration and initializes logging.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
	Queue   QueueConfig   `yaml:"queue" mapstructure:"queue"`
	Worker  WorkerConfig  `yaml:"worker" mapstructure:"worker"`
	Parser  ParserConfig  `yaml:"parser" mapstructure:"parser"`
	Extract ExtractConfig `yaml:"extract" mapstructure:"extract"`
	Resolve ResolveConfig `yaml:"resolve" mapstructure:"resolve"`
	Anomaly AnomalyConfig `yaml:"anomaly" mapstructure:"anomaly"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// StorageConfig configures the object-storage collaborator.
type StorageConfig struct {
	Root string `yaml:"root" mapstructure:"root"` // filesystem root for the fs backend
}

// QueueConfig configures the durable job queue.
type QueueConfig struct {
	VisibilityTimeoutSecs int `yaml:"visibility_timeout_secs" mapstructure:"visibility_timeout_secs"`
	MaxAttempts           int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffSecs    int `yaml:"initial_backoff_secs" mapstructure:"initial_backoff_secs"`
	MaxBackoffSecs        int `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
}

// VisibilityTimeout returns the claim visibility timeout as a duration.
func (q QueueConfig) VisibilityTimeout() time.Duration {
	return time.Duration(q.VisibilityTimeoutSecs) * time.Second
}

// WorkerConfig configures the processing worker pool.
type WorkerConfig struct {
	Concurrency  int     `yaml:"concurrency" mapstructure:"concurrency"`
	PollRatePerS float64 `yaml:"poll_rate_per_s" mapstructure:"poll_rate_per_s"`
}

// ParserConfig configures document parsing.
type ParserConfig struct {
	PdfToTextPath string `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
}

// ExtractConfig configures domain extraction.
type ExtractConfig struct {
	// MaxRowFailureRatio fails a document outright when the fraction of
	// unparsable data rows exceeds it.
	MaxRowFailureRatio float64 `yaml:"max_row_failure_ratio" mapstructure:"max_row_failure_ratio"`
	// VocabPath optionally points at a YAML vocabulary override file
	// (non-lease markers, statement labels, header synonyms).
	VocabPath string `yaml:"vocab_path" mapstructure:"vocab_path"`
}

// ResolveConfig configures property identity resolution.
type ResolveConfig struct {
	AutoThreshold   float64 `yaml:"auto_threshold" mapstructure:"auto_threshold"`
	ReviewThreshold float64 `yaml:"review_threshold" mapstructure:"review_threshold"`
}

// AnomalyConfig configures the anomaly detection batch.
type AnomalyConfig struct {
	MinHistory int     `yaml:"min_history" mapstructure:"min_history"`
	Window     int     `yaml:"window" mapstructure:"window"`
	ZThreshold float64 `yaml:"z_threshold" mapstructure:"z_threshold"`
	CThreshold float64 `yaml:"cusum_threshold" mapstructure:"cusum_threshold"`
	// ClassThresholds overrides flagging thresholds per property class
	// ("stabilized", "lease_up"); missing classes use the base thresholds.
	ClassThresholds map[string]ClassThreshold `yaml:"class_thresholds" mapstructure:"class_thresholds"`
}

// ClassThreshold overrides flagging thresholds for one property class.
type ClassThreshold struct {
	ZThreshold float64 `yaml:"z_threshold" mapstructure:"z_threshold"`
	CThreshold float64 `yaml:"cusum_threshold" mapstructure:"cusum_threshold"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROPFIN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("storage.root", "./data/blobs")
	v.SetDefault("queue.visibility_timeout_secs", 300)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.initial_backoff_secs", 30)
	v.SetDefault("queue.max_backoff_secs", 900)
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.poll_rate_per_s", 2.0)
	v.SetDefault("parser.pdftotext_path", "pdftotext")
	v.SetDefault("extract.max_row_failure_ratio", 0.2)
	v.SetDefault("resolve.auto_threshold", 0.90)
	v.SetDefault("resolve.review_threshold", 0.60)
	v.SetDefault("anomaly.min_history", 6)
	v.SetDefault("anomaly.window", 12)
	v.SetDefault("anomaly.z_threshold", 2.0)
	v.SetDefault("anomaly.cusum_threshold", 5.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
