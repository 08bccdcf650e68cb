package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 300*1024, cfg.Packaging.SizeBudget)
	assert.Equal(t, "localhost:8080", cfg.Server.Address())
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "log level"},
		{"missing ocr url", func(c *Config) { c.OCR.URL = "" }, "ocr.url"},
		{"missing documents dir", func(c *Config) { c.Storage.DocumentsDir = "" }, "documents_dir"},
		{"missing patients file", func(c *Config) { c.Storage.PatientsFile = "" }, "patients_file"},
		{"zero size budget", func(c *Config) { c.Packaging.SizeBudget = 0 }, "size_budget"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadWithFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	content := `
log_level: debug
ocr:
  url: http://ocr.internal:9000
  timeout: 30s
storage:
  documents_dir: /var/lib/docflow/documents
  patients_file: /var/lib/docflow/patients.yaml
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.LoadWithFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "http://ocr.internal:9000", cfg.OCR.URL)
	assert.Equal(t, 30*time.Second, cfg.OCR.Timeout)
	assert.Equal(t, 9090, cfg.Server.Port)
	// untouched keys keep their defaults
	assert.Equal(t, 300*1024, cfg.Packaging.SizeBudget)
}

func TestLoadWithFile_Missing(t *testing.T) {
	loader := NewLoaderWithViper(viper.New())
	_, err := loader.LoadWithFile("/does/not/exist.yaml")
	assert.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DOCFLOW_OCR_URL", "http://env-ocr:1234")
	t.Setenv("DOCFLOW_LOG_LEVEL", "warn")

	loader := NewLoaderWithViper(viper.New())
	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "http://env-ocr:1234", cfg.OCR.URL)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadWithFile_InvalidValuesRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "docflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 99999\n"), 0o644))

	loader := NewLoaderWithViper(viper.New())
	_, err := loader.LoadWithFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port")
}
