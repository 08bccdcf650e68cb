package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete configuration for the docflow application.
// It supports loading from configuration files, environment variables, and
// command-line flags.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// External services
	OCR OCRConfig `mapstructure:"ocr" yaml:"ocr" json:"ocr"`
	NLP NLPConfig `mapstructure:"nlp" yaml:"nlp" json:"nlp"`

	// Storage locations
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Packaging settings
	Packaging PackagingConfig `mapstructure:"packaging" yaml:"packaging" json:"packaging"`

	// Server configuration (for serve command)
	Server ServerConfig `mapstructure:"server" yaml:"server" json:"server"`
}

// OCRConfig points at the external OCR service.
type OCRConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// NLPConfig points at the optional classification delegate. An empty URL
// disables the delegate entirely.
type NLPConfig struct {
	URL     string        `mapstructure:"url" yaml:"url" json:"url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// StorageConfig locates the document store and the patient directory.
type StorageConfig struct {
	DocumentsDir string `mapstructure:"documents_dir" yaml:"documents_dir" json:"documents_dir"`
	PatientsFile string `mapstructure:"patients_file" yaml:"patients_file" json:"patients_file"`
	// MaxBytes caps the total size of stored PDFs. Zero means unlimited.
	MaxBytes int64 `mapstructure:"max_bytes" yaml:"max_bytes" json:"max_bytes"`
}

// PackagingConfig tunes the archive PDF output.
type PackagingConfig struct {
	// SizeBudget is the maximum archive PDF size in bytes.
	SizeBudget int `mapstructure:"size_budget" yaml:"size_budget" json:"size_budget"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string        `mapstructure:"host" yaml:"host" json:"host"`
	Port        int           `mapstructure:"port" yaml:"port" json:"port"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	CORSEnabled bool          `mapstructure:"cors_enabled" yaml:"cors_enabled" json:"cors_enabled"`
}

// Address returns the host:port the server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DefaultConfig returns the configuration used when no file, environment
// variable or flag overrides a value.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		OCR: OCRConfig{
			URL:     "http://localhost:8500",
			Timeout: 60 * time.Second,
		},
		NLP: NLPConfig{
			Timeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			DocumentsDir: "./data/documents",
			PatientsFile: "./data/patients.yaml",
		},
		Packaging: PackagingConfig{
			SizeBudget: 300 * 1024,
		},
		Server: ServerConfig{
			Host:    "localhost",
			Port:    8080,
			Timeout: 120 * time.Second,
		},
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid log level %q (use debug, info, warn or error)", c.LogLevel)
	}
	if c.OCR.URL == "" {
		return fmt.Errorf("ocr.url must be set")
	}
	if c.Storage.DocumentsDir == "" {
		return fmt.Errorf("storage.documents_dir must be set")
	}
	if c.Storage.PatientsFile == "" {
		return fmt.Errorf("storage.patients_file must be set")
	}
	if c.Packaging.SizeBudget <= 0 {
		return fmt.Errorf("packaging.size_budget must be positive")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return nil
}
