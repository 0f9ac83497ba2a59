package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tesobe-kodeaffe/clickcounter-backend/infrastructure/config"
)

type sample struct {
	Name    string        `yaml:"name"`
	Port    int           `env:"SAMPLE_PORT"    yaml:"port"`
	Debug   bool          `env:"SAMPLE_DEBUG"   yaml:"debug"`
	Timeout time.Duration `env:"SAMPLE_TIMEOUT" yaml:"timeout"`
	Nested  struct {
		Hosts []string `env:"SAMPLE_HOSTS" yaml:"hosts"`
	} `yaml:"nested"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadWithDefaults_YAMLThenDefaults(t *testing.T) {
	path := writeFile(t, "name: from-file\nport: 9000\n")

	cfg, err := config.LoadWithDefaults(path, func(s *sample) {
		if s.Timeout == 0 {
			s.Timeout = time.Second
		}
		if s.Name == "" {
			s.Name = "default"
		}
	})
	require.NoError(t, err)

	assert.Equal(t, "from-file", cfg.Name)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, time.Second, cfg.Timeout)
}

func TestLoadWithDefaults_EnvWins(t *testing.T) {
	path := writeFile(t, "port: 9000\n")
	t.Setenv("SAMPLE_PORT", "9100")
	t.Setenv("SAMPLE_DEBUG", "true")
	t.Setenv("SAMPLE_TIMEOUT", "250ms")
	t.Setenv("SAMPLE_HOSTS", "a, b")

	cfg, err := config.LoadWithDefaults[sample](path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
	assert.Equal(t, []string{"a", "b"}, cfg.Nested.Hosts)
}

func TestLoadWithDefaults_MissingFile(t *testing.T) {
	cfg, err := config.LoadWithDefaults[sample](filepath.Join(t.TempDir(), "absent.yml"), nil)
	require.NoError(t, err)
	assert.Zero(t, cfg.Port)
}

func TestLoadWithDefaults_BadYAML(t *testing.T) {
	path := writeFile(t, "port: [not an int\n")

	_, err := config.LoadWithDefaults[sample](path, nil)
	require.Error(t, err)
}

func TestLoadWithDefaults_BadEnvValue(t *testing.T) {
	path := writeFile(t, "")
	t.Setenv("SAMPLE_PORT", "eighty")

	_, err := config.LoadWithDefaults[sample](path, nil)

	var vErr *config.ValidationError
	require.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	assert.Equal(t, "SAMPLE_PORT", vErr.Field)
}

func TestGetConfigPath(t *testing.T) {
	assert.Equal(t, config.DefaultConfigPath, config.GetConfigPath(config.DefaultConfigPath))

	t.Setenv("CONFIG_PATH", "/etc/clickcounter.yml")
	assert.Equal(t, "/etc/clickcounter.yml", config.GetConfigPath(config.DefaultConfigPath))
}

func TestValidateOneOf(t *testing.T) {
	t.Helper()

	require.NoError(t, config.ValidateOneOf("storage.records", "redis", "memory", "postgres", "redis"))

	err := config.ValidateOneOf("storage.records", "mongo", "memory", "postgres")
	require.EqualError(t, err, "storage.records: must be one of: memory, postgres")
}
