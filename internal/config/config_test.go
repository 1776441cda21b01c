// ABOUTME: Tests for configuration loading, saving and validation
// ABOUTME: Covers YAML and TOML files, env var expansion and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("RECGATE_TEST_SECRET", "from-env-secret")
	path := writeFile(t, "gateway.yaml", `
policy: listener
server:
  host: "127.0.0.1"
  port: 20151
  read_timeout: "5s"
  task_period: "30s"
control:
  port: 20152
  jwt_secret: "${RECGATE_TEST_SECRET}"
backends:
  - {host: 10.0.0.1, port: 10150, account: admin, password: pw}
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsListener())
	assert.Equal(t, "127.0.0.1:20151", cfg.ListenAddr())
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.TaskPeriod)
	assert.Equal(t, time.Second, cfg.Server.AcceptTimeout, "default kept")
	assert.Equal(t, "from-env-secret", cfg.Control.JWTSecret)
	assert.Equal(t, "recgate.Control", cfg.Control.Name)
	assert.Equal(t, 5*time.Minute, cfg.Account.CacheTTL)
	assert.Equal(t, path, cfg.Path())

	primary, ok := cfg.PrimaryBackend()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1:10150", primary.Addr())
}

func TestLoad_TOML(t *testing.T) {
	path := writeFile(t, "gateway.toml", `
policy = "balancer"

[server]
port = 30151
backend_timeout = "2s"

[[backends]]
host = "10.0.0.1"
port = 10150
account = "admin"
password = "a"

[[backends]]
host = "10.0.0.2"
port = 10150
account = "admin"
password = "b"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.IsListener())
	assert.Equal(t, 30151, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Server.BackendTimeout)
	require.Len(t, cfg.Backends, 2)
	assert.Equal(t, "10.0.0.2", cfg.Backends[1].Host)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "server:\n  read_timeout: \"soon\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read_timeout")

	_, err = Load(writeFile(t, "bad-policy.yaml", "policy: roundrobin\n"))
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"port out of range":    func(c *Config) { c.Server.Port = 70000 },
		"zero read timeout":    func(c *Config) { c.Server.ReadTimeout = 0 },
		"empty control name":   func(c *Config) { c.Control.Name = "" },
		"privileges too large": func(c *Config) { c.Account.Privileges = 8 },
		"backend without host": func(c *Config) { c.Backends[0].Host = "" },
		"listener no backend":  func(c *Config) { c.Policy = PolicyListener; c.Backends = nil },
		"bad log level":        func(c *Config) { c.Logging.Level = "loud" },
		"bad metrics path":     func(c *Config) { c.Metrics.Path = "metrics" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestSave_RoundTripKeepsEnvReferences(t *testing.T) {
	t.Setenv("RECGATE_TEST_SECRET", "s3cret")
	for _, name := range []string{"gateway.yaml", "gateway.toml"} {
		t.Run(name, func(t *testing.T) {
			src := Default()
			src.Control.JWTSecret = "${RECGATE_TEST_SECRET}"
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, src.Save(path))

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, "s3cret", cfg.Control.JWTSecret)

			cfg.Server.Port = 40151
			require.NoError(t, cfg.Save(path))

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), "${RECGATE_TEST_SECRET}")
			assert.False(t, strings.Contains(string(data), "s3cret"))

			again, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, 40151, again.Server.Port)
			assert.Equal(t, time.Minute, again.Server.TaskPeriod)
		})
	}
}

func TestClone_IsDeep(t *testing.T) {
	cfg := Default()
	clone := cfg.Clone()
	clone.Backends[0].Port = 1

	assert.Equal(t, 10150, cfg.Backends[0].Port)
}

func TestPrepare_ParsesRawDurations(t *testing.T) {
	cfg := Default()
	cfg.Server.TaskPeriodRaw = "15s"
	require.NoError(t, cfg.Prepare())
	assert.Equal(t, 15*time.Second, cfg.Server.TaskPeriod)

	cfg.Server.TaskPeriodRaw = "-"
	assert.Error(t, cfg.Prepare())
}
