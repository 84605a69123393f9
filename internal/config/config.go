// Package config provides configuration loading for insightd.
//
// Configuration is read from a YAML file and overridden by INSIGHTD_*
// environment variables. See LoadWithFile for precedence and file rules.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Storage backends understood by the insight store factory.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendDynamoDB = "dynamodb"
	BackendBadger   = "badger"
	BackendMongoDB  = "mongodb"
)

// Config holds the complete insightd configuration.
type Config struct {
	Server       ServerConfig       `koanf:"server"`
	Storage      StorageConfig      `koanf:"storage"`
	Detector     DetectorConfig     `koanf:"detector"`
	Conversation ConversationConfig `koanf:"conversation"`
	Recorder     RecorderConfig     `koanf:"recorder"`
	Events       EventsConfig       `koanf:"events"`
	Logging      LoggingConfig      `koanf:"logging"`
	Telemetry    TelemetryConfig    `koanf:"telemetry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimit       float64       `koanf:"rate_limit"` // requests per second per client, 0 disables
	RateBurst       int           `koanf:"rate_burst"`
	BodyLimit       string        `koanf:"body_limit"`
}

// StorageConfig selects and configures the insight store backend.
type StorageConfig struct {
	Backend          string        `koanf:"backend"`
	OperationTimeout time.Duration `koanf:"operation_timeout"`
	KeyPrefix        string        `koanf:"key_prefix"`

	SQLitePath string `koanf:"sqlite_path"`

	PostgresDSN    Secret `koanf:"postgres_dsn"`
	PostgresSchema string `koanf:"postgres_schema"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword Secret `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	DynamoDBRegion      string `koanf:"dynamodb_region"`
	DynamoDBEndpoint    string `koanf:"dynamodb_endpoint"`
	DynamoDBTable       string `koanf:"dynamodb_table"`
	DynamoDBCreateTable bool   `koanf:"dynamodb_create_table"`

	BadgerDir        string        `koanf:"badger_dir"`
	BadgerInMemory   bool          `koanf:"badger_in_memory"`
	BadgerGCInterval time.Duration `koanf:"badger_gc_interval"`

	MongoDBURI        Secret `koanf:"mongodb_uri"`
	MongoDBDatabase   string `koanf:"mongodb_database"`
	MongoDBCollection string `koanf:"mongodb_collection"`
}

// DetectorConfig configures the signal detector.
type DetectorConfig struct {
	MaxInputChars int    `koanf:"max_input_chars"`
	MinInputChars int    `koanf:"min_input_chars"`
	CatalogPath   string `koanf:"catalog_path"` // optional YAML/TOML catalog replacing the built-in one
}

// ConversationConfig configures the conversation analyzer.
type ConversationConfig struct {
	TranscriptDir string `koanf:"transcript_dir"`
	MaxTurns      int    `koanf:"max_turns"`
}

// RecorderConfig configures the asynchronous recorder.
type RecorderConfig struct {
	Workers    int           `koanf:"workers"`
	QueueSize  int           `koanf:"queue_size"`
	JobTimeout time.Duration `koanf:"job_timeout"`
}

// EventsConfig configures insight event publishing. Publishing is disabled
// when NATSURL is empty.
type EventsConfig struct {
	NATSURL       string `koanf:"nats_url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

// LoggingConfig holds the logging settings exposed through the config file.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// TelemetryConfig holds the OpenTelemetry settings exposed through the
// config file.
type TelemetryConfig struct {
	Enabled      bool    `koanf:"enabled"`
	Endpoint     string  `koanf:"endpoint"`
	Protocol     string  `koanf:"protocol"` // grpc or http
	Insecure     bool    `koanf:"insecure"`
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, errors.New("server.rate_limit cannot be negative"))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, err)
	}

	if c.Detector.MaxInputChars <= 0 {
		errs = append(errs, errors.New("detector.max_input_chars must be positive"))
	}
	if c.Detector.MinInputChars < 0 || c.Detector.MinInputChars > c.Detector.MaxInputChars {
		errs = append(errs, fmt.Errorf("detector.min_input_chars must be between 0 and %d", c.Detector.MaxInputChars))
	}

	if c.Conversation.MaxTurns <= 0 {
		errs = append(errs, errors.New("conversation.max_turns must be positive"))
	}

	if c.Recorder.Workers <= 0 {
		errs = append(errs, errors.New("recorder.workers must be positive"))
	}
	if c.Recorder.QueueSize <= 0 {
		errs = append(errs, errors.New("recorder.queue_size must be positive"))
	}
	if c.Recorder.JobTimeout <= 0 {
		errs = append(errs, errors.New("recorder.job_timeout must be positive"))
	}

	if c.Events.NATSURL != "" && c.Events.SubjectPrefix == "" {
		errs = append(errs, errors.New("events.subject_prefix is required when events.nats_url is set"))
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	switch c.Telemetry.Protocol {
	case "grpc", "http":
	default:
		errs = append(errs, fmt.Errorf("telemetry.protocol must be 'grpc' or 'http', got %q", c.Telemetry.Protocol))
	}
	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
	}

	return errors.Join(errs...)
}

// Validate checks that the selected backend has what it needs to connect.
func (s *StorageConfig) Validate() error {
	if s.OperationTimeout <= 0 {
		return errors.New("storage.operation_timeout must be positive")
	}
	switch strings.ToLower(s.Backend) {
	case BackendMemory:
	case BackendSQLite:
		if s.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if !s.PostgresDSN.IsSet() {
			return errors.New("storage.postgres_dsn is required for the postgres backend")
		}
	case BackendRedis:
		if s.RedisAddr == "" {
			return errors.New("storage.redis_addr is required for the redis backend")
		}
	case BackendDynamoDB:
		if s.DynamoDBTable == "" {
			return errors.New("storage.dynamodb_table is required for the dynamodb backend")
		}
	case BackendBadger:
		if s.BadgerDir == "" && !s.BadgerInMemory {
			return errors.New("storage.badger_dir is required for the badger backend")
		}
	case BackendMongoDB:
		if !s.MongoDBURI.IsSet() {
			return errors.New("storage.mongodb_uri is required for the mongodb backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", s.Backend)
	}
	return nil
}
