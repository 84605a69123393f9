package config

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Second, cfg.Storage.OperationTimeout)
	assert.Equal(t, 10000, cfg.Detector.MaxInputChars)
	assert.Equal(t, 10, cfg.Detector.MinInputChars)
	assert.Equal(t, 20, cfg.Conversation.MaxTurns)
	assert.Equal(t, 4, cfg.Recorder.Workers)
	assert.Equal(t, 256, cfg.Recorder.QueueSize)
	assert.Empty(t, cfg.Events.NATSURL)
	assert.Equal(t, "insightd.insights", cfg.Events.SubjectPrefix)
	assert.False(t, cfg.Telemetry.Enabled)

	require.NoError(t, cfg.Validate())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "server.http_port",
		},
		{
			name:    "negative rate limit",
			mutate:  func(c *Config) { c.Server.RateLimit = -1 },
			wantErr: "server.rate_limit",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Storage.Backend = "cassandra" },
			wantErr: `storage.backend "cassandra"`,
		},
		{
			name: "postgres without dsn",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendPostgres
			},
			wantErr: "storage.postgres_dsn",
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendPostgres
				c.Storage.PostgresDSN = "postgres://localhost/insightd"
			},
		},
		{
			name: "mongodb without uri",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendMongoDB
			},
			wantErr: "storage.mongodb_uri",
		},
		{
			name: "badger in memory needs no dir",
			mutate: func(c *Config) {
				c.Storage.Backend = BackendBadger
				c.Storage.BadgerDir = ""
				c.Storage.BadgerInMemory = true
			},
		},
		{
			name:    "min input above max",
			mutate:  func(c *Config) { c.Detector.MinInputChars = c.Detector.MaxInputChars + 1 },
			wantErr: "detector.min_input_chars",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Recorder.Workers = -1 },
			wantErr: "recorder.workers",
		},
		{
			name: "nats without subject prefix",
			mutate: func(c *Config) {
				c.Events.NATSURL = "nats://localhost:4222"
				c.Events.SubjectPrefix = ""
			},
			wantErr: "events.subject_prefix",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "bad telemetry protocol",
			mutate:  func(c *Config) { c.Telemetry.Protocol = "udp" },
			wantErr: "telemetry.protocol",
		},
		{
			name:    "sampling rate above one",
			mutate:  func(c *Config) { c.Telemetry.SamplingRate = 1.5 },
			wantErr: "telemetry.sampling_rate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.Server.Port = 0
	cfg.Recorder.QueueSize = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.http_port")
	assert.Contains(t, err.Error(), "recorder.queue_size")
}

func TestSecret_Redacted(t *testing.T) {
	s := Secret("postgres://user:hunter2@db/insightd")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")
	assert.Equal(t, "postgres://user:hunter2@db/insightd", s.Value())

	data, err := json.Marshal(struct {
		DSN Secret `json:"dsn"`
	}{DSN: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"dsn":"[REDACTED]"}`, string(data))

	assert.False(t, Secret("").IsSet())
	assert.Equal(t, "", Secret("").String())
}
