// Package config loads the normalizer's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as a string ("90s", "6h") in YAML.
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML writes the duration back as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Gateway struct {
		Broker          string   `yaml:"broker"`
		Username        string   `yaml:"username"`
		Password        string   `yaml:"password"`
		TopicPrefix     string   `yaml:"topic_prefix"`
		CoordinatorIEEE string   `yaml:"coordinator_ieee"`
		RequestTimeout  Duration `yaml:"request_timeout"`
	} `yaml:"gateway"`
	Store struct {
		Driver string `yaml:"driver"` // "bolt" or "sqlite"
		Path   string `yaml:"path"`
	} `yaml:"store"`
	Enrollment struct {
		MaxAttempts    int      `yaml:"max_attempts"`
		Backoff        Duration `yaml:"backoff"`
		AttemptTimeout Duration `yaml:"attempt_timeout"`
	} `yaml:"enrollment"`
	Refresh struct {
		InitialDelay Duration `yaml:"initial_delay"`
		Interval     Duration `yaml:"interval"`
		ReadTimeout  Duration `yaml:"read_timeout"`
	} `yaml:"refresh"`
	Web struct {
		Listen         string   `yaml:"listen"`
		APIKey         string   `yaml:"api_key"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`
	MQTT struct {
		Enabled     bool   `yaml:"enabled"`
		Broker      string `yaml:"broker"`
		Username    string `yaml:"username"`
		Password    string `yaml:"password"`
		TopicPrefix string `yaml:"topic_prefix"`
	} `yaml:"mqtt"`
	InfluxDB struct {
		Enabled       bool     `yaml:"enabled"`
		URL           string   `yaml:"url"`
		Token         string   `yaml:"token"`
		Org           string   `yaml:"org"`
		Bucket        string   `yaml:"bucket"`
		BatchSize     uint     `yaml:"batch_size"`
		FlushInterval Duration `yaml:"flush_interval"`
	} `yaml:"influxdb"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	DevicesDir string `yaml:"devices_dir"`
}

// Load reads path, applies defaults and environment overrides, and validates
// the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.Gateway.TopicPrefix = "zigbee-gw"
	cfg.Gateway.RequestTimeout = Duration(5 * time.Second)
	cfg.Store.Driver = "bolt"
	cfg.Store.Path = "tuya-normalizer.db"
	cfg.Enrollment.MaxAttempts = 3
	cfg.Enrollment.Backoff = Duration(time.Second)
	cfg.Enrollment.AttemptTimeout = Duration(5 * time.Second)
	cfg.Refresh.InitialDelay = Duration(2 * time.Minute)
	cfg.Refresh.Interval = Duration(6 * time.Hour)
	cfg.Refresh.ReadTimeout = Duration(5 * time.Second)
	cfg.Web.Listen = "127.0.0.1:8080"
	cfg.MQTT.TopicPrefix = "tuya"
	cfg.InfluxDB.Bucket = "tuya"
	cfg.InfluxDB.BatchSize = 100
	cfg.InfluxDB.FlushInterval = Duration(10 * time.Second)
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.DevicesDir = "devices"
	return cfg
}

// applyEnvOverrides lets secrets stay out of the config file.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TUYA_GATEWAY_PASSWORD"); v != "" {
		cfg.Gateway.Password = v
	}
	if v := os.Getenv("TUYA_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("TUYA_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("TUYA_WEB_API_KEY"); v != "" {
		cfg.Web.APIKey = v
	}
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Gateway.Broker == "" {
		errs = append(errs, "gateway.broker is required")
	}
	if len(c.Gateway.CoordinatorIEEE) != 16 {
		errs = append(errs, "gateway.coordinator_ieee must be 16 hex digits")
	}
	switch c.Store.Driver {
	case "bolt", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be bolt or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.Path == "" {
		errs = append(errs, "store.path is required")
	}
	if c.Enrollment.MaxAttempts < 1 {
		errs = append(errs, "enrollment.max_attempts must be at least 1")
	}
	if c.Refresh.Interval.Std() < time.Minute {
		errs = append(errs, "refresh.interval must be at least 1m")
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, "mqtt.broker is required when mqtt is enabled")
	}
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb is enabled")
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
