package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config holds the configuration for the ruuvi-home services
type Config struct {
	// MQTT configuration
	MQTTBrokerURL string `yaml:"mqtt_broker_url"`
	MQTTTopic     string `yaml:"mqtt_topic"`
	MQTTClientID  string `yaml:"mqtt_client_id"`
	MQTTUsername  string `yaml:"mqtt_username"`
	MQTTPassword  string `yaml:"mqtt_password"`
	MQTTKeepAlive time.Duration `yaml:"mqtt_keep_alive"`

	// Database configuration
	DatabaseURL string `yaml:"database_url"`
	DBPoolSize  int    `yaml:"db_pool_size"`

	// Redis latest-reading cache (disabled when RedisAddr is empty)
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// Pipeline tuning
	BatchMaxRows    int           `yaml:"batch_max_rows"`
	BatchMaxAge     time.Duration `yaml:"batch_max_age"`
	ChannelCapacity int           `yaml:"channel_capacity"`
	DecodeWorkers   int           `yaml:"decode_workers"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Service configuration
	ServiceName string `yaml:"service_name"`
	HealthPort  int    `yaml:"health_port"`
	APIPort     int    `yaml:"api_port"`
	LogLevel    string `yaml:"log_level"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		MQTTBrokerURL:   "tcp://localhost:1883",
		MQTTTopic:       "ruuvi/+/+",
		MQTTClientID:    "ruuvi-ingester",
		MQTTUsername:    "",
		MQTTPassword:    "",
		MQTTKeepAlive:   30 * time.Second,
		DatabaseURL:     "postgres://postgres@localhost:5432/ruuvi?sslmode=disable",
		DBPoolSize:      8,
		RedisAddr:       "",
		RedisPassword:   "",
		RedisDB:         0,
		BatchMaxRows:    256,
		BatchMaxAge:     time.Second,
		ChannelCapacity: 4096,
		DecodeWorkers:   1,
		ShutdownTimeout: 30 * time.Second,
		ServiceName:     "ruuvi-home",
		HealthPort:      8080,
		APIPort:         8090,
		LogLevel:        "info",
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("MQTT_BROKER_URL"); v != "" {
		c.MQTTBrokerURL = v
	}
	if v := os.Getenv("MQTT_TOPIC"); v != "" {
		c.MQTTTopic = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		c.MQTTClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		c.MQTTUsername = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		c.MQTTPassword = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("DB_POOL_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.DBPoolSize = size
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.RedisDB = db
		}
	}
	if v := os.Getenv("BATCH_MAX_ROWS"); v != "" {
		if rows, err := strconv.Atoi(v); err == nil {
			c.BatchMaxRows = rows
		}
	}
	if v := os.Getenv("BATCH_MAX_AGE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			c.BatchMaxAge = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("CHANNEL_CAPACITY"); v != "" {
		if capacity, err := strconv.Atoi(v); err == nil {
			c.ChannelCapacity = capacity
		}
	}
	if v := os.Getenv("DECODE_WORKERS"); v != "" {
		if workers, err := strconv.Atoi(v); err == nil {
			c.DecodeWorkers = workers
		}
	}
	if v := os.Getenv("SHUTDOWN_TIMEOUT"); v != "" {
		if timeout, err := time.ParseDuration(v); err == nil {
			c.ShutdownTimeout = timeout
		}
	}
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.HealthPort = port
		}
	}
	if v := os.Getenv("API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.APIPort = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// LoadFromFile loads configuration from a YAML file, overriding current values
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// LoadFromFlags parses command-line flags and overrides config values.
// When --config names a YAML file, it is loaded here and applied through
// applyFileDefaults; an unreadable file is ignored.
func (c *Config) LoadFromFlags() {
	pflag.StringVar(&c.MQTTBrokerURL, "mqtt-broker-url", c.MQTTBrokerURL, "MQTT broker URL (e.g. tcp://host:1883)")
	pflag.StringVar(&c.MQTTTopic, "mqtt-topic", c.MQTTTopic, "MQTT subscription filter")
	pflag.StringVar(&c.MQTTClientID, "mqtt-client-id", c.MQTTClientID, "Stable MQTT client ID")
	pflag.StringVar(&c.MQTTUsername, "mqtt-username", c.MQTTUsername, "MQTT username")
	pflag.StringVar(&c.MQTTPassword, "mqtt-password", c.MQTTPassword, "MQTT password")
	pflag.StringVar(&c.DatabaseURL, "database-url", c.DatabaseURL, "TimescaleDB connection string")
	pflag.IntVar(&c.DBPoolSize, "db-pool-size", c.DBPoolSize, "Max database connections")
	pflag.StringVar(&c.RedisAddr, "redis-addr", c.RedisAddr, "Redis address for the latest-reading cache (empty disables)")
	pflag.StringVar(&c.RedisPassword, "redis-password", c.RedisPassword, "Redis password")
	pflag.IntVar(&c.RedisDB, "redis-db", c.RedisDB, "Redis database number")
	pflag.IntVar(&c.BatchMaxRows, "batch-max-rows", c.BatchMaxRows, "Max rows per commit")
	pflag.DurationVar(&c.BatchMaxAge, "batch-max-age", c.BatchMaxAge, "Max batch age before flush")
	pflag.IntVar(&c.ChannelCapacity, "channel-capacity", c.ChannelCapacity, "Bounded reading channel capacity")
	pflag.IntVar(&c.DecodeWorkers, "decode-workers", c.DecodeWorkers, "Number of decoder tasks")
	pflag.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "Hard deadline for graceful shutdown")
	pflag.StringVar(&c.ServiceName, "service-name", c.ServiceName, "Service name")
	pflag.IntVar(&c.HealthPort, "health-port", c.HealthPort, "Health and metrics HTTP port")
	pflag.IntVar(&c.APIPort, "api-port", c.APIPort, "Read API HTTP port")
	pflag.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level (debug, info, warn, error)")

	configFile := pflag.String("config", "", "Optional YAML configuration file")

	pflag.Parse()

	if *configFile != "" {
		// File values replace the fields applyFileDefaults covers while they
		// still hold their built-in defaults; values changed by env or flags
		// win.
		fileCfg := NewConfig()
		if err := fileCfg.LoadFromFile(*configFile); err == nil {
			applyFileDefaults(c, fileCfg)
		}
	}
}

// applyFileDefaults copies file values over c for flags left at their default
func applyFileDefaults(c, file *Config) {
	defaults := NewConfig()
	if c.MQTTBrokerURL == defaults.MQTTBrokerURL {
		c.MQTTBrokerURL = file.MQTTBrokerURL
	}
	if c.MQTTTopic == defaults.MQTTTopic {
		c.MQTTTopic = file.MQTTTopic
	}
	if c.DatabaseURL == defaults.DatabaseURL {
		c.DatabaseURL = file.DatabaseURL
	}
	if c.RedisAddr == defaults.RedisAddr {
		c.RedisAddr = file.RedisAddr
	}
	if c.BatchMaxRows == defaults.BatchMaxRows {
		c.BatchMaxRows = file.BatchMaxRows
	}
	if c.BatchMaxAge == defaults.BatchMaxAge {
		c.BatchMaxAge = file.BatchMaxAge
	}
	if c.LogLevel == defaults.LogLevel {
		c.LogLevel = file.LogLevel
	}
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.MQTTBrokerURL == "" {
		return fmt.Errorf("MQTT broker URL is required")
	}
	if c.MQTTTopic == "" {
		return fmt.Errorf("MQTT topic filter is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database URL is required")
	}
	if c.DBPoolSize <= 0 {
		return fmt.Errorf("DB pool size must be positive")
	}
	if c.BatchMaxRows <= 0 {
		return fmt.Errorf("batch max rows must be positive")
	}
	if c.BatchMaxAge <= 0 {
		return fmt.Errorf("batch max age must be positive")
	}
	if c.ChannelCapacity <= 0 {
		return fmt.Errorf("channel capacity must be positive")
	}
	if c.DecodeWorkers <= 0 {
		return fmt.Errorf("decode workers must be positive")
	}
	if c.HealthPort <= 0 || c.HealthPort > 65535 {
		return fmt.Errorf("health port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.LogLevel)
	}

	return nil
}

// CacheEnabled reports whether the Redis latest-reading cache is configured
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}
