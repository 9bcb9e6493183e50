// Package testutil provides test utilities and helpers for credroute tests.
//
// This package contains shared test infrastructure including configuration
// builders, log capture and certificate fixtures.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/systmms/credroute/internal/config"
	"github.com/systmms/credroute/internal/logging"
)

// TestConfigBuilder provides a fluent API for building test configurations.
//
// The default configuration keeps the legacy store in a fresh temporary
// directory and the modern store under a test-only keyring service.
//
// Example usage:
//
//	cfg := NewTestConfig(t).
//	    WithModernService("credroute-test").
//	    Load()
type TestConfigBuilder struct {
	config  *config.Definition
	tempDir string
	t       *testing.T
}

// NewTestConfig creates a new TestConfigBuilder.
func NewTestConfig(t *testing.T) *TestConfigBuilder {
	t.Helper()

	tempDir := t.TempDir()

	return &TestConfigBuilder{
		config: &config.Definition{
			Legacy: config.LegacyConfig{Path: filepath.Join(tempDir, "legacy")},
			Modern: config.ModernConfig{Service: "credroute-test"},
		},
		tempDir: tempDir,
		t:       t,
	}
}

// WithModernService sets the keyring service name.
func (b *TestConfigBuilder) WithModernService(service string) *TestConfigBuilder {
	b.config.Modern.Service = service
	return b
}

// WithoutLegacy disables the legacy store.
func (b *TestConfigBuilder) WithoutLegacy() *TestConfigBuilder {
	disabled := false
	b.config.Legacy = config.LegacyConfig{Enabled: &disabled}
	return b
}

// WithoutModern disables the modern store.
func (b *TestConfigBuilder) WithoutModern() *TestConfigBuilder {
	disabled := false
	b.config.Modern.Enabled = &disabled
	return b
}

// WithMetrics enables Prometheus counters.
func (b *TestConfigBuilder) WithMetrics() *TestConfigBuilder {
	b.config.Metrics.Enabled = true
	return b
}

// Build returns the configuration definition.
func (b *TestConfigBuilder) Build() *config.Definition {
	return b.config
}

// Write writes the configuration to the temporary directory and returns the path.
func (b *TestConfigBuilder) Write() string {
	b.t.Helper()

	data, err := yaml.Marshal(b.config)
	if err != nil {
		b.t.Fatalf("Failed to marshal test config: %v", err)
	}
	path := filepath.Join(b.tempDir, config.DefaultFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		b.t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

// Config writes the configuration and returns a non-interactive runtime
// config pointing at it, with logging discarded.
func (b *TestConfigBuilder) Config() *config.Config {
	b.t.Helper()

	return &config.Config{
		Path:           b.Write(),
		Logger:         logging.Discard(),
		NonInteractive: true,
	}
}

// WriteTestConfig writes a YAML string to a temporary credroute.yaml and
// returns its path.
func WriteTestConfig(t *testing.T, yamlContent string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), config.DefaultFile)
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}
