package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable that overrides the config file path.
const EnvConfigPath = "EMUBOT_CONFIG"

// DefaultPath is the config file used when EMUBOT_CONFIG is not set.
const DefaultPath = "configs/emubot.yaml"

// Config is the root configuration structure for emubot.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site      SiteConfig      `yaml:"site"`
	Runner    RunnerConfig    `yaml:"runner"`
	Device    DeviceConfig    `yaml:"device"`
	OCR       OCRConfig       `yaml:"ocr"`
	Matcher   MatcherConfig   `yaml:"matcher"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Security  SecurityConfig  `yaml:"security"`
	Audit     AuditConfig     `yaml:"audit"`
}

// SiteConfig identifies this emubot installation.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RunnerConfig contains runner service settings.
type RunnerConfig struct {
	// ShutdownTimeout bounds how long serve waits for running scripts
	// to unwind (seconds).
	ShutdownTimeout int `yaml:"shutdown_timeout"`
}

// AuditConfig controls the operator action trail.
type AuditConfig struct {
	// RetentionDays prunes older entries; 0 keeps everything.
	RetentionDays int `yaml:"retention_days"`
}

// DeviceConfig configures the adb device adapter.
type DeviceConfig struct {
	// ADBPath is the adb binary. Default: "adb"
	ADBPath string `yaml:"adb_path"`

	// Serials maps instance names to adb serials. Instances missing from
	// the map are passed to adb unchanged.
	Serials map[string]string `yaml:"serials"`

	// CommandTimeout bounds each adb invocation (seconds).
	CommandTimeout int `yaml:"command_timeout"`
}

// OCRConfig configures the tesseract text reader.
type OCRConfig struct {
	TesseractPath string `yaml:"tesseract_path"`
	Lang          string `yaml:"lang"`
	Timeout       int    `yaml:"timeout"`
}

// MatcherConfig configures the template matcher.
type MatcherConfig struct {
	// Confidence is the score reported when a template file exists.
	Confidence float64 `yaml:"confidence"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file,omitempty"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains operator token settings.
// An empty secret disables API authentication.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// minJWTSecretLength is the shortest HMAC secret accepted.
const minJWTSecretLength = 32

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EMUBOT_SECTION_KEY
// For example: EMUBOT_DATABASE_PATH, EMUBOT_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides
// applied. It is used when no config file exists.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// ResolvePath returns the explicit path if set, else EMUBOT_CONFIG, else DefaultPath.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if v := os.Getenv(EnvConfigPath); v != "" {
		return v
	}
	return DefaultPath
}

func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "emubot-001",
			Name: "emubot",
		},
		Runner: RunnerConfig{
			ShutdownTimeout: 10,
		},
		Device: DeviceConfig{
			ADBPath:        "adb",
			CommandTimeout: 10,
		},
		OCR: OCRConfig{
			TesseractPath: "tesseract",
			Lang:          "eng",
			Timeout:       15,
		},
		Matcher: MatcherConfig{
			Confidence: 1.0,
		},
		Database: DatabaseConfig{
			Path:        "./data/emubot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "emubot-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "emubot",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 1440,
			},
		},
		Audit: AuditConfig{
			RetentionDays: 90,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EMUBOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("EMUBOT_ADB_PATH"); v != "" {
		cfg.Device.ADBPath = v
	}
	if v := os.Getenv("EMUBOT_TESSERACT_PATH"); v != "" {
		cfg.OCR.TesseractPath = v
	}
	if v := os.Getenv("EMUBOT_OCR_LANG"); v != "" {
		cfg.OCR.Lang = v
	}

	if v := os.Getenv("EMUBOT_MQTT_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MQTT.Enabled = b
		}
	}
	if v := os.Getenv("EMUBOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EMUBOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EMUBOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("EMUBOT_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("EMUBOT_API_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = p
		}
	}

	if v := os.Getenv("EMUBOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	if v := os.Getenv("EMUBOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("EMUBOT_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Runner.ShutdownTimeout < 0 {
		errs = append(errs, "runner.shutdown_timeout must not be negative")
	}

	if c.Device.ADBPath == "" {
		errs = append(errs, "device.adb_path is required")
	}
	if c.Device.CommandTimeout < 0 {
		errs = append(errs, "device.command_timeout must not be negative")
	}

	if c.OCR.Lang == "" {
		errs = append(errs, "ocr.lang is required")
	}

	if c.Matcher.Confidence < 0 || c.Matcher.Confidence > 1 {
		errs = append(errs, "matcher.confidence must be between 0 and 1")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	// Empty means the API runs without authentication.
	if s := c.Security.JWT.Secret; s != "" && len(s) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if c.Audit.RetentionDays < 0 {
		errs = append(errs, "audit.retention_days must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// AuthEnabled reports whether API requests must carry an operator token.
func (c *Config) AuthEnabled() bool {
	return c.Security.JWT.Secret != ""
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown bound.
func (c *Config) GetShutdownTimeout() time.Duration {
	return time.Duration(c.Runner.ShutdownTimeout) * time.Second
}

// GetDeviceTimeout returns the per-command adb timeout.
func (c *Config) GetDeviceTimeout() time.Duration {
	return time.Duration(c.Device.CommandTimeout) * time.Second
}

// GetOCRTimeout returns the per-call tesseract timeout.
func (c *Config) GetOCRTimeout() time.Duration {
	return time.Duration(c.OCR.Timeout) * time.Second
}

// GetAuditRetention returns how long audit entries are kept; 0 means forever.
func (c *Config) GetAuditRetention() time.Duration {
	return time.Duration(c.Audit.RetentionDays) * 24 * time.Hour
}

// GetTokenTTL returns the operator token lifetime.
func (c *Config) GetTokenTTL() time.Duration {
	return time.Duration(c.Security.JWT.AccessTokenTTL) * time.Minute
}
