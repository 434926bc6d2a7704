package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
app:
  name: student-bulk-import
  version: 1.0.0
  env: development
database:
  host: localhost
  port: 3306
  user: root
  password: secret
  name: students
  parse_time: true
redis:
  host: localhost
  port: 6379
  student_queue: rows
workers:
  import:
    count: 8
tracker:
  batch_timeout: 5m
`

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "rows", cfg.Redis.StudentQueue)
	assert.Equal(t, "studentQueue:events", cfg.Redis.EventQueue)
	assert.Equal(t, ":dlq", cfg.Redis.DLQSuffix)
	assert.Equal(t, int64(100), cfg.Redis.DLQMaxLen)
	assert.Equal(t, 8, cfg.Workers.Import.Count)
	assert.Equal(t, 3, cfg.Workers.Import.RetryAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Tracker.BatchTimeout)
	assert.Equal(t, time.Minute, cfg.Tracker.SweepInterval)
	assert.Equal(t, "admin", cfg.Auth.AdminRole)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestParse_EnvOverridesSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("DB_PASSWORD", "env-pass")

	cfg, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, "env-pass", cfg.Database.Password)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("app: [unterminated"))
	assert.Error(t, err)
}

func TestLoad_ReadsConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("DB_PASSWORD", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "student-bulk-import", cfg.App.Name)
	assert.Equal(t,
		"root:secret@tcp(localhost:3306)/students?charset=utf8mb4&parseTime=true&loc=UTC",
		cfg.DatabaseDSN())
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()
	assert.Error(t, err)
}

func TestParse_ExampleConfig(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.Tracker.BatchTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Workers.Import.RetryDelay)
	assert.Equal(t, int64(10485760), cfg.Server.MaxUploadSize)
	assert.False(t, cfg.Storage.S3.Enabled)
	assert.True(t, cfg.Database.AutoMigrate)
}
