// Package config loads and validates the Argus service configuration
// from an optional YAML file plus ARGUS_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DetectorConfig is the per-detector triple every windowed detector
// carries: an enabled flag, an occurrence threshold and a lookback
// window in minutes.
type DetectorConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Threshold     int  `mapstructure:"threshold"`
	WindowMinutes int  `mapstructure:"window_minutes"`
}

// Config holds all configuration for the Argus service. It is loaded
// once at startup and never mutated afterwards.
type Config struct {
	MongoDB struct {
		URI                string `mapstructure:"uri"`
		Database           string `mapstructure:"database"`
		MaxPoolSize        uint64 `mapstructure:"max_pool_size"`
		BatchInsertTimeout int    `mapstructure:"batch_insert_timeout"` // seconds
	} `mapstructure:"mongodb"`

	Storage struct {
		BufferSize     int  `mapstructure:"buffer_size"`
		DedupCacheSize int  `mapstructure:"dedup_cache_size"`
		Deduplication  bool `mapstructure:"deduplication"`
		RetentionDays  int  `mapstructure:"retention_days"`
	} `mapstructure:"storage"`

	API struct {
		Host string `mapstructure:"host"`
		Port int    `mapstructure:"port"`
	} `mapstructure:"api"`

	Engine struct {
		IntervalSeconds int `mapstructure:"interval_seconds"`
	} `mapstructure:"engine"`

	Detection struct {
		SSHBruteForce DetectorConfig `mapstructure:"ssh_brute_force"`
		RDPBruteForce DetectorConfig `mapstructure:"rdp_brute_force"`

		PrivilegeEscalation struct {
			Enabled       bool `mapstructure:"enabled"`
			WindowMinutes int  `mapstructure:"window_minutes"`
		} `mapstructure:"privilege_escalation"`

		Malware DetectorConfig `mapstructure:"malware"`

		LateralMovement struct {
			Enabled       bool `mapstructure:"enabled"`
			WindowMinutes int  `mapstructure:"window_minutes"`
			HostThreshold int  `mapstructure:"host_threshold"`
		} `mapstructure:"lateral_movement"`

		DataExfiltration struct {
			Enabled       bool  `mapstructure:"enabled"`
			WindowMinutes int   `mapstructure:"window_minutes"`
			SizeThreshold int64 `mapstructure:"size_threshold"` // bytes
		} `mapstructure:"data_exfiltration"`

		Anomaly struct {
			Enabled      bool    `mapstructure:"enabled"`
			BaselineDays int     `mapstructure:"baseline_days"`
			Threshold    float64 `mapstructure:"threshold"` // standard deviations
		} `mapstructure:"anomaly"`

		Correlation struct {
			Enabled       bool `mapstructure:"enabled"`
			WindowMinutes int  `mapstructure:"window_minutes"`
		} `mapstructure:"correlation"`

		Compliance struct {
			Enabled             bool `mapstructure:"enabled"`
			FailedAuthThreshold int  `mapstructure:"failed_auth_threshold"`
		} `mapstructure:"compliance"`
	} `mapstructure:"detection"`
}

func setDefaults() {
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "argus")
	viper.SetDefault("mongodb.max_pool_size", 10)
	viper.SetDefault("mongodb.batch_insert_timeout", 5)

	viper.SetDefault("storage.buffer_size", 100)
	viper.SetDefault("storage.dedup_cache_size", 10000)
	viper.SetDefault("storage.deduplication", true)
	viper.SetDefault("storage.retention_days", 30)

	viper.SetDefault("api.host", "0.0.0.0")
	viper.SetDefault("api.port", 3001)

	viper.SetDefault("engine.interval_seconds", 30)

	viper.SetDefault("detection.ssh_brute_force.enabled", true)
	viper.SetDefault("detection.ssh_brute_force.threshold", 5)
	viper.SetDefault("detection.ssh_brute_force.window_minutes", 2)

	viper.SetDefault("detection.rdp_brute_force.enabled", true)
	viper.SetDefault("detection.rdp_brute_force.threshold", 5)
	viper.SetDefault("detection.rdp_brute_force.window_minutes", 2)

	viper.SetDefault("detection.privilege_escalation.enabled", true)
	viper.SetDefault("detection.privilege_escalation.window_minutes", 5)

	viper.SetDefault("detection.malware.enabled", true)
	viper.SetDefault("detection.malware.threshold", 3)
	viper.SetDefault("detection.malware.window_minutes", 10)

	viper.SetDefault("detection.lateral_movement.enabled", true)
	viper.SetDefault("detection.lateral_movement.window_minutes", 10)
	viper.SetDefault("detection.lateral_movement.host_threshold", 3)

	viper.SetDefault("detection.data_exfiltration.enabled", true)
	viper.SetDefault("detection.data_exfiltration.window_minutes", 5)
	viper.SetDefault("detection.data_exfiltration.size_threshold", 104857600) // 100MB

	viper.SetDefault("detection.anomaly.enabled", true)
	viper.SetDefault("detection.anomaly.baseline_days", 7)
	viper.SetDefault("detection.anomaly.threshold", 2.5)

	viper.SetDefault("detection.correlation.enabled", true)
	viper.SetDefault("detection.correlation.window_minutes", 15)

	viper.SetDefault("detection.compliance.enabled", true)
	viper.SetDefault("detection.compliance.failed_auth_threshold", 10)
}

// LoadConfig reads configuration from the given directory (or the current
// directory when empty) and the environment, applies defaults, validates
// once and returns the immutable result.
func LoadConfig(configPath string) (*Config, error) {
	viper.Reset()
	setDefaults()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	if configPath != "" {
		viper.AddConfigPath(configPath)
	}
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("ARGUS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; everything has a default.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks cross-field constraints once at load time.
func (c *Config) Validate() error {
	if c.MongoDB.URI == "" {
		return fmt.Errorf("mongodb.uri must not be empty")
	}
	if c.MongoDB.Database == "" {
		return fmt.Errorf("mongodb.database must not be empty")
	}
	if c.API.Port < 1 || c.API.Port > 65535 {
		return fmt.Errorf("api.port %d out of range", c.API.Port)
	}
	if c.Engine.IntervalSeconds < 1 {
		return fmt.Errorf("engine.interval_seconds must be positive")
	}
	if c.Storage.BufferSize < 1 {
		return fmt.Errorf("storage.buffer_size must be positive")
	}

	for name, d := range map[string]DetectorConfig{
		"ssh_brute_force": c.Detection.SSHBruteForce,
		"rdp_brute_force": c.Detection.RDPBruteForce,
		"malware":         c.Detection.Malware,
	} {
		if d.Threshold < 1 {
			return fmt.Errorf("detection.%s.threshold must be positive", name)
		}
		if d.WindowMinutes < 1 {
			return fmt.Errorf("detection.%s.window_minutes must be positive", name)
		}
	}
	if c.Detection.PrivilegeEscalation.WindowMinutes < 1 {
		return fmt.Errorf("detection.privilege_escalation.window_minutes must be positive")
	}
	if c.Detection.LateralMovement.HostThreshold < 1 {
		return fmt.Errorf("detection.lateral_movement.host_threshold must be positive")
	}
	if c.Detection.Anomaly.BaselineDays < 1 {
		return fmt.Errorf("detection.anomaly.baseline_days must be positive")
	}
	if c.Detection.Anomaly.Threshold <= 0 {
		return fmt.Errorf("detection.anomaly.threshold must be positive")
	}
	if c.Detection.Correlation.WindowMinutes < 1 {
		return fmt.Errorf("detection.correlation.window_minutes must be positive")
	}
	if c.Detection.Compliance.FailedAuthThreshold < 1 {
		return fmt.Errorf("detection.compliance.failed_auth_threshold must be positive")
	}
	return nil
}
