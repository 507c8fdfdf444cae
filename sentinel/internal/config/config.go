package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/alerts"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/anomaly"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/breaker"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/buffer"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/delivery"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/engine"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/models"
	"github.com/telhawk-systems/telhawk-sentinel/sentinel/internal/responder"
)

// Config holds all configuration for the sentinel service
type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	NATS      NATSConfig       `mapstructure:"nats"`
	Redis     RedisConfig      `mapstructure:"redis"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Source    SourceConfig     `mapstructure:"source"`
	Patterns  PatternsConfig   `mapstructure:"patterns"`
	Engine    EngineConfig     `mapstructure:"engine"`
	Anomaly   anomaly.Config   `mapstructure:"anomaly"`
	Breaker   breaker.Config   `mapstructure:"breaker"`
	Alerts    alerts.Config    `mapstructure:"alerts"`
	Responder responder.Config `mapstructure:"responder"`
}

// ServerConfig holds HTTP server configuration for health and metrics
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NATSConfig holds NATS connection settings
type NATSConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	URL           string        `mapstructure:"url"`
	Name          string        `mapstructure:"name"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Token         string        `mapstructure:"token"`
	QueueGroup    string        `mapstructure:"queue_group"`
	// Buffer is the capacity of the channel between the subscription and
	// the engine workers.
	Buffer int `mapstructure:"buffer"`
	// ActionAck makes block actions wait for an acknowledgement from the
	// enforcement point.
	ActionAck        bool          `mapstructure:"action_ack"`
	ActionAckTimeout time.Duration `mapstructure:"action_ack_timeout"`
}

// RedisConfig holds Redis configuration for alert suppression
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
	Prefix     string `mapstructure:"prefix"`
}

// DatabaseConfig holds PostgreSQL configuration for the incident archive
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Database    string `mapstructure:"database"`
	SSLMode     string `mapstructure:"sslmode"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// ConnectionString renders the settings as a postgres URL.
func (p PostgresConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode,
	)
}

// SourceConfig selects a JSONL file to replay when NATS is disabled.
type SourceConfig struct {
	File string `mapstructure:"file"`
}

// PatternsConfig points at an optional YAML pattern file. Empty means the
// built-in catalogue.
type PatternsConfig struct {
	File string `mapstructure:"file"`
}

// EngineConfig holds the pipeline settings that are not owned by a
// component section.
type EngineConfig struct {
	Buffer              buffer.Config   `mapstructure:"buffer"`
	Notifications       delivery.Config `mapstructure:"notifications"`
	MaintenanceInterval time.Duration   `mapstructure:"maintenance_interval"`
	MaintenanceBackoff  time.Duration   `mapstructure:"maintenance_backoff"`
	UnhealthyAfter      int             `mapstructure:"unhealthy_after"`
	IndicatorTTL        time.Duration   `mapstructure:"indicator_ttl"`
	IndicatorCapacity   int             `mapstructure:"indicator_capacity"`
	IncidentRelevance   time.Duration   `mapstructure:"incident_relevance"`
	ConsumeWorkers      int             `mapstructure:"consume_workers"`
}

// EngineConfig assembles the engine configuration from the component
// sections.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		Buffer:              c.Engine.Buffer,
		Anomaly:             c.Anomaly,
		Breaker:             c.Breaker,
		Alerts:              c.Alerts,
		Responder:           c.Responder,
		Notifications:       c.Engine.Notifications,
		MaintenanceInterval: c.Engine.MaintenanceInterval,
		MaintenanceBackoff:  c.Engine.MaintenanceBackoff,
		UnhealthyAfter:      c.Engine.UnhealthyAfter,
		IndicatorTTL:        c.Engine.IndicatorTTL,
		IndicatorCapacity:   c.Engine.IndicatorCapacity,
		IncidentRelevance:   c.Engine.IncidentRelevance,
		ConsumeWorkers:      c.Engine.ConsumeWorkers,
	}
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/sentinel")
	}

	// Environment variables override (SENTINEL_SERVER_PORT, etc.)
	v.SetEnvPrefix("SENTINEL")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.name", "telhawk-sentinel")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")
	v.SetDefault("nats.username", "")
	v.SetDefault("nats.password", "")
	v.SetDefault("nats.token", "")
	v.SetDefault("nats.queue_group", "sentinel-workers")
	v.SetDefault("nats.buffer", 1024)
	v.SetDefault("nats.action_ack", false)
	v.SetDefault("nats.action_ack_timeout", "5s")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.prefix", "sentinel:suppression")

	v.SetDefault("database.postgres.enabled", false)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "telhawk")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "telhawk_sentinel")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)
	v.SetDefault("database.postgres.min_conns", 1)
	v.SetDefault("database.postgres.auto_migrate", true)

	v.SetDefault("source.file", "")
	v.SetDefault("patterns.file", "")

	v.SetDefault("engine.buffer.capacity", 1000)
	v.SetDefault("engine.buffer.ttl", "24h")
	v.SetDefault("engine.buffer.max_keys", 10000)
	v.SetDefault("engine.maintenance_interval", "60s")
	v.SetDefault("engine.maintenance_backoff", "5s")
	v.SetDefault("engine.unhealthy_after", 3)
	v.SetDefault("engine.indicator_ttl", "24h")
	v.SetDefault("engine.indicator_capacity", 10000)
	v.SetDefault("engine.incident_relevance", "24h")
	v.SetDefault("engine.consume_workers", 4)
	setQueueDefaults(v, "engine.notifications")

	v.SetDefault("anomaly.timing_history", 100)
	v.SetDefault("anomaly.timing_min_history", 10)
	v.SetDefault("anomaly.timing_rare_fraction", 0.05)
	v.SetDefault("anomaly.timing_confidence", 0.4)
	v.SetDefault("anomaly.geo_history", 50)
	v.SetDefault("anomaly.geo_confidence", 0.6)
	v.SetDefault("anomaly.volume_window", "1h")
	v.SetDefault("anomaly.volume_ceiling", 50)
	v.SetDefault("anomaly.volume_min_history", 20)
	v.SetDefault("anomaly.volume_confidence", 0.7)
	v.SetDefault("anomaly.thresholds.alert", 0.7)
	v.SetDefault("anomaly.thresholds.escalate", 0.9)
	v.SetDefault("anomaly.thresholds.auto_block", 0.9)

	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.timeout", "60s")
	v.SetDefault("breaker.idle_ttl", "1h")

	v.SetDefault("alerts.suppression_window", "5m")
	setQueueDefaults(v, "alerts.queue")

	v.SetDefault("responder.block_duration", "1h")
	setQueueDefaults(v, "responder.queue")
}

func setQueueDefaults(v *viper.Viper, prefix string) {
	d := delivery.DefaultConfig()
	v.SetDefault(prefix+".workers", d.Workers)
	v.SetDefault(prefix+".queue_size", d.QueueSize)
	v.SetDefault(prefix+".max_attempts", d.MaxAttempts)
	v.SetDefault(prefix+".attempt_timeout", d.AttemptTimeout.String())
	v.SetDefault(prefix+".max_pending", d.MaxPending)
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if c.NATS.Enabled && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled"))
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		errs = append(errs, errors.New("redis.url is required when redis is enabled"))
	}
	if pg := c.Database.Postgres; pg.Enabled && (pg.Host == "" || pg.Database == "") {
		errs = append(errs, errors.New("database.postgres host and database are required when enabled"))
	}
	if c.Engine.Buffer.Capacity < 0 || c.Engine.Buffer.MaxKeys < 0 {
		errs = append(errs, errors.New("engine.buffer sizes must not be negative"))
	}
	if err := validateThresholds("anomaly.thresholds", c.Anomaly.Thresholds); err != nil {
		errs = append(errs, err)
	}
	if c.Breaker.Threshold < 0 {
		errs = append(errs, errors.New("breaker.threshold must not be negative"))
	}
	return errors.Join(errs...)
}

func validateThresholds(name string, t models.Thresholds) error {
	for _, v := range []float64{t.Alert, t.Escalate, t.AutoBlock} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0,1]", name)
		}
	}
	if t.Alert > 0 && t.Escalate > 0 && t.Alert > t.Escalate {
		return fmt.Errorf("%s.alert must not exceed escalate", name)
	}
	return nil
}
