package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WRMS_AUTH__JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("WRMS_REMOTE__TIMEOUT", "7s")
	t.Setenv("WRMS_SYNC__CONCURRENCY", "8")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTP.ListenAddr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 8*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 7*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 120*time.Second, cfg.Remote.UpdateTimeout)
	assert.Equal(t, 8, cfg.Sync.Concurrency)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
}

func TestLoadConfig_YAMLThenEnvOverride(t *testing.T) {
	chdir(t, t.TempDir())
	path := writeYAML(t, `
http:
  listen_addr: "127.0.0.1:9000"
  allowed_origins: ["https://dash.example.com"]
database:
  driver: mysql
  dsn: "wrms:pw@tcp(db:3306)/wrms?parseTime=true"
auth:
  jwt_secret: "yaml-secret-yaml-secret"
remote:
  verify_attempts: 5
`)
	t.Setenv("WRMS_HTTP__LISTEN_ADDR", "0.0.0.0:9100")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9100", cfg.HTTP.ListenAddr)
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5, cfg.Remote.VerifyAttempts)
	assert.Equal(t, 5*time.Second, cfg.Remote.VerifyInterval)
}

func TestLoadConfig_Validation(t *testing.T) {
	chdir(t, t.TempDir())

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "JWTSecret")

	t.Setenv("WRMS_AUTH__JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("WRMS_DATABASE__DRIVER", "postgres")
	_, err = LoadConfig("")
	assert.ErrorContains(t, err, "Driver")
}

func TestLoadConfig_VaultReferenceRequiresVault(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WRMS_AUTH__JWT_SECRET", "vault:wrms/prod#jwt_secret")

	_, err := LoadConfig("")
	assert.ErrorContains(t, err, "vault.enabled")
}

func TestLoadRemoteConfig_IgnoresDashboardSettings(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("WRMS_REMOTE__TIMEOUT", "3s")

	_, err := LoadConfig("")
	require.Error(t, err)

	rcfg, err := LoadRemoteConfig("")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, rcfg.Timeout)
	assert.Equal(t, int64(4<<20), rcfg.MaxBodyBytes)

	t.Setenv("WRMS_REMOTE__VERIFY_ATTEMPTS", "0")
	_, err = LoadRemoteConfig("")
	assert.ErrorContains(t, err, "VerifyAttempts")
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
