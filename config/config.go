// Package config loads the ingestion service configuration from a YAML or
// JSON file with environment overrides. The returned Config is treated as
// immutable for the life of the process.
package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cyberinferno/camingest/logger"
	"github.com/cyberinferno/camingest/tenant"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. CAMINGEST_SERVER_PORT.
const EnvPrefix = "CAMINGEST"

// ErrMissingField is returned when a required key is absent.
var ErrMissingField = errors.New("missing required config field")

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig             `mapstructure:"server"`
	Storage  StorageConfig            `mapstructure:"storage"`
	Queue    QueueConfig              `mapstructure:"queue"`
	Workers  WorkersConfig            `mapstructure:"workers"`
	Redis    RedisConfig              `mapstructure:"redis"`
	Armed    ArmedConfig              `mapstructure:"armed"`
	Notify   NotifyConfig             `mapstructure:"notify"`
	Detector DetectorConfig           `mapstructure:"detector"`
	Log      LogConfig                `mapstructure:"log"`
	Tenants  map[string]tenant.Config `mapstructure:"tenants"`
}

// ServerConfig configures the control and data channels.
type ServerConfig struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	PublicHost        string        `mapstructure:"public_host"`
	PassivePortStart  int           `mapstructure:"passive_port_start"`
	PassivePortEnd    int           `mapstructure:"passive_port_end"`
	DataAcceptTimeout time.Duration `mapstructure:"data_accept_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	Welcome           string        `mapstructure:"welcome"`
}

// Addr returns the control listener address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig locates tenant sandboxes. A non-empty PositiveDir archives
// images with relevant detections.
type StorageConfig struct {
	Root               string   `mapstructure:"root"`
	LeftoverExtensions []string `mapstructure:"leftover_extensions"`
	PositiveDir        string   `mapstructure:"positive_dir"`
}

// QueueConfig sizes the work queue.
type QueueConfig struct {
	MemoryCapacity  int           `mapstructure:"memory_capacity"`
	DBPath          string        `mapstructure:"db_path"`
	SizeLogInterval time.Duration `mapstructure:"size_log_interval"`
}

// WorkersConfig sizes the worker pool and its supervisor.
type WorkersConfig struct {
	Count              int           `mapstructure:"count"`
	SupervisorInterval time.Duration `mapstructure:"supervisor_interval"`
	IdleWait           time.Duration `mapstructure:"idle_wait"`
	ShutdownGrace      time.Duration `mapstructure:"shutdown_grace"`
}

// RedisConfig points at the armed-state store. An empty Addr disables redis.
type RedisConfig struct {
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	ArmedKeyPrefix string        `mapstructure:"armed_key_prefix"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

// ArmedConfig configures the auto-arm checker.
type ArmedConfig struct {
	AutoArmInterval time.Duration `mapstructure:"auto_arm_interval"`
}

// NotifyConfig configures chat notifications. An empty token disables them.
type NotifyConfig struct {
	TelegramToken string `mapstructure:"telegram_token"`
	APIBase       string `mapstructure:"api_base"`
}

// DetectorConfig points at the inference endpoint. An empty URL disables
// detection.
type DetectorConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level         string `mapstructure:"level"`
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

var requiredFields = []string{
	"storage.root",
	"tenants",
}

// field: default value
var optionalFields = map[string]any{
	"server.host":                 "0.0.0.0",
	"server.port":                 2121,
	"server.public_host":          "",
	"server.passive_port_start":   0,
	"server.passive_port_end":     0,
	"server.data_accept_timeout":  "30s",
	"server.idle_timeout":         "0s",
	"server.welcome":              "Welcome to the camera ingestion FTP server",
	"storage.leftover_extensions": []string{".png", ".jpg", ".jpeg", ".gif"},
	"storage.positive_dir":        "",
	"queue.memory_capacity":       300,
	"queue.db_path":               "image_queue.db",
	"queue.size_log_interval":     "5m",
	"workers.count":               4,
	"workers.supervisor_interval": "10s",
	"workers.idle_wait":           "1s",
	"workers.shutdown_grace":      "5s",
	"redis.addr":                  "",
	"redis.password":              "",
	"redis.db":                    0,
	"redis.armed_key_prefix":      "user_armed_status:",
	"redis.cache_ttl":             "5s",
	"armed.auto_arm_interval":     "30s",
	"notify.telegram_token":       "",
	"notify.api_base":             "https://api.telegram.org",
	"detector.url":                "",
	"detector.timeout":            "30s",
	"log.level":                   "info",
	"log.dir":                     "",
	"log.retention_days":          7,
}

// Load reads the configuration file at path (YAML or JSON by extension)
// and applies CAMINGEST_* environment overrides. Tenant IDs are taken from
// the keys of the tenants map and are therefore lower-cased.
//
// Parameters:
//   - path: Configuration file path
//
// Returns:
//   - The validated configuration
//   - An error if the file cannot be read, a required field is missing, or
//     validation fails
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for field, defaultValue := range optionalFields {
		v.SetDefault(field, defaultValue)
	}
	for _, field := range requiredFields {
		_ = v.BindEnv(field)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("could not read config: %w", err)
	}

	for _, field := range requiredFields {
		if !v.IsSet(field) {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, field)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	for id, t := range cfg.Tenants {
		t.ID = id
		if t.WorkingStart == "" {
			t.WorkingStart = "00:00"
		}
		if t.WorkingEnd == "" {
			t.WorkingEnd = "23:59"
		}
		if !v.IsSet("tenants." + id + ".armed") {
			t.Armed = true
		}
		cfg.Tenants[id] = t
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Storage.Root == "" {
		return fmt.Errorf("%w: storage.root", ErrMissingField)
	}
	if len(c.Tenants) == 0 {
		return fmt.Errorf("%w: tenants", ErrMissingField)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.PassivePortStart > 0 || c.Server.PassivePortEnd > 0 {
		if c.Server.PassivePortStart <= 0 || c.Server.PassivePortEnd < c.Server.PassivePortStart ||
			c.Server.PassivePortEnd > 65535 {
			return fmt.Errorf("invalid passive port range %d-%d", c.Server.PassivePortStart, c.Server.PassivePortEnd)
		}
	}
	if c.Queue.MemoryCapacity <= 0 {
		return fmt.Errorf("queue.memory_capacity must be positive, got %d", c.Queue.MemoryCapacity)
	}
	if c.Queue.DBPath == "" {
		return fmt.Errorf("%w: queue.db_path", ErrMissingField)
	}
	if c.Workers.Count <= 0 {
		return fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count)
	}
	if c.Workers.SupervisorInterval <= 0 || c.Workers.IdleWait <= 0 {
		return errors.New("workers.supervisor_interval and workers.idle_wait must be positive")
	}
	if c.Queue.SizeLogInterval <= 0 || c.Armed.AutoArmInterval <= 0 {
		return errors.New("queue.size_log_interval and armed.auto_arm_interval must be positive")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	// Directory construction enforces unique users and valid clocks.
	if _, err := tenant.NewDirectory(c.TenantList()); err != nil {
		return err
	}

	return nil
}

// TenantList returns the configured tenants ordered by ID.
func (c *Config) TenantList() []tenant.Config {
	ids := make([]string, 0, len(c.Tenants))
	for id := range c.Tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]tenant.Config, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.Tenants[id])
	}

	return out
}

// Directory builds the tenant directory handed to the protocol server.
func (c *Config) Directory() (*tenant.Directory, error) {
	return tenant.NewDirectory(c.TenantList())
}
