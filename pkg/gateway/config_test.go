package gateway

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
server:
    url: http://localhost:1234
    password: hunter2
database: /tmp/test.db
sms_only: true
log_level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1234", cfg.Server.URL)
	assert.Equal(t, "hunter2", cfg.Server.Password)
	assert.Equal(t, "/tmp/test.db", cfg.Database)
	assert.True(t, cfg.SMSOnly)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
    url: https://relay.example.com
    password: hunter2
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "bothbubbles.db", cfg.Database)
	assert.False(t, cfg.SMSOnly)
	assert.Equal(t, zerolog.InfoLevel, cfg.Level())
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig(writeConfigFile(t, `
server:
    password: hunter2
`))
	assert.ErrorContains(t, err, "server.url is required")

	_, err = LoadConfig(writeConfigFile(t, `
server:
    url: relay.example.com
`))
	assert.ErrorContains(t, err, "http(s)")

	_, err = LoadConfig(writeConfigFile(t, `
server:
    url: http://localhost:1234
log_level: shouty
`))
	assert.ErrorContains(t, err, "log_level")
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestExampleConfigParses(t *testing.T) {
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(ExampleConfig), &cfg))
	assert.NotEmpty(t, cfg.Server.URL)
}
