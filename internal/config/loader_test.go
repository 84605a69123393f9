package config

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestHome points HOME at a temp dir and returns the insightd config dir
// inside it.
func setupTestHome(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "insightd")
	require.NoError(t, os.MkdirAll(dir, 0700))
	return dir
}

func writeConfig(t *testing.T, dir, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), perm))
	return path
}

func TestLoadWithFile_ValidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  host: 0.0.0.0
  http_port: 8088
  shutdown_timeout: 3s
storage:
  backend: Redis
  redis_addr: cache:6379
  redis_password: hunter2
recorder:
  workers: 2
  job_timeout: 750ms
events:
  nats_url: nats://bus:4222
  subject_prefix: acme.insights
`, 0600)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8088, cfg.Server.Port)
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, BackendRedis, cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "hunter2", cfg.Storage.RedisPassword.Value())
	assert.Equal(t, 2, cfg.Recorder.Workers)
	assert.Equal(t, 750*time.Millisecond, cfg.Recorder.JobTimeout)
	assert.Equal(t, "nats://bus:4222", cfg.Events.NATSURL)
	assert.Equal(t, "acme.insights", cfg.Events.SubjectPrefix)

	// Untouched sections keep their defaults.
	assert.Equal(t, 10000, cfg.Detector.MaxInputChars)
	assert.Equal(t, 256, cfg.Recorder.QueueSize)
}

func TestLoadWithFile_EnvironmentOverride(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
server:
  http_port: 8088
storage:
  backend: memory
`, 0600)

	t.Setenv("INSIGHTD_SERVER_HTTP_PORT", "7777")
	t.Setenv("INSIGHTD_STORAGE_BACKEND", "sqlite")
	t.Setenv("INSIGHTD_STORAGE_SQLITE_PATH", "/var/lib/insightd/insights.db")
	t.Setenv("INSIGHTD_STORAGE_OPERATION_TIMEOUT", "2s")
	t.Setenv("INSIGHTD_DETECTOR_MIN_INPUT_CHARS", "5")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
	assert.Equal(t, "/var/lib/insightd/insights.db", cfg.Storage.SQLitePath)
	assert.Equal(t, 2*time.Second, cfg.Storage.OperationTimeout)
	assert.Equal(t, 5, cfg.Detector.MinInputChars)
}

func TestLoadWithFile_DefaultPathMissingFile(t *testing.T) {
	setupTestHome(t)

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}

func TestLoadWithFile_InvalidYAML(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server: [unclosed\n", 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config file")
}

func TestLoadWithFile_ValidationFailure(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, `
storage:
  backend: cassandra
`, 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestLoadWithFile_PathValidation(t *testing.T) {
	dir := setupTestHome(t)

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "traversal", path: "../../../../etc/passwd", wantErr: true},
		{name: "outside allowed dirs", path: filepath.Join(t.TempDir(), "config.yaml"), wantErr: true},
		{name: "sibling with shared prefix", path: dir + "-evil/config.yaml", wantErr: true},
		{name: "user config dir", path: filepath.Join(dir, "config.yaml")},
		{name: "nested in user config dir", path: filepath.Join(dir, "profiles", "dev.yaml")},
		{name: "system config dir", path: "/etc/insightd/config.yaml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfigPath(tt.path)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "~/.config/insightd/ or /etc/insightd/")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadWithFile_InsecurePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on Windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0644)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure config file permissions")
}

func TestLoadWithFile_ReadOnlyPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission model differs on Windows")
	}
	dir := setupTestHome(t)
	path := writeConfig(t, dir, "server:\n  http_port: 8088\n", 0400)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, 8088, cfg.Server.Port)
}

func TestLoadWithFile_FileTooLarge(t *testing.T) {
	dir := setupTestHome(t)
	path := writeConfig(t, dir, string(bytes.Repeat([]byte("# comment line\n"), 150000)), 0600)

	_, err := LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "server.http_port", envKey("INSIGHTD_SERVER_HTTP_PORT"))
	assert.Equal(t, "storage.dynamodb_create_table", envKey("INSIGHTD_STORAGE_DYNAMODB_CREATE_TABLE"))
	assert.Equal(t, "debug", envKey("INSIGHTD_DEBUG"))
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := ExpandHome("~/.config/insightd/insights.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".config", "insightd", "insights.db"), got)

	got, err = ExpandHome("/var/lib/insights.db")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/insights.db", got)
}

func TestEnsureConfigDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	require.NoError(t, EnsureConfigDir())

	info, err := os.Stat(filepath.Join(home, ".config", "insightd"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	if runtime.GOOS != "windows" {
		assert.Equal(t, os.FileMode(0700), info.Mode().Perm())
	}
}
