package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	dserrors "github.com/systmms/credroute/internal/errors"
	"github.com/systmms/credroute/internal/logging"
	"github.com/systmms/credroute/internal/stores/badgerstore"
	"github.com/systmms/credroute/internal/stores/keyringstore"
)

// DefaultFile is the configuration file looked up when no path is given.
const DefaultFile = "credroute.yaml"

// DefaultParentCacheSize bounds the router's parent-certificate cache.
const DefaultParentCacheSize = 100

//go:embed schema.json
var schemaJSON []byte

// Config holds the runtime configuration
type Config struct {
	Path           string
	Logger         *logging.Logger
	NonInteractive bool
	// Optional makes a missing file load the defaults instead of failing.
	Optional   bool
	Definition *Definition
}

// Definition represents the credroute.yaml structure
type Definition struct {
	Version int           `yaml:"version"`
	Legacy  LegacyConfig  `yaml:"legacy"`
	Modern  ModernConfig  `yaml:"modern"`
	Router  RouterConfig  `yaml:"router"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LegacyConfig configures the file-backed store.
type LegacyConfig struct {
	Enabled         *bool  `yaml:"enabled,omitempty"`
	Path            string `yaml:"path,omitempty"`
	InMemory        bool   `yaml:"in_memory,omitempty"`
	SyncWrites      bool   `yaml:"sync_writes,omitempty"`
	DefaultKeychain string `yaml:"default_keychain,omitempty"`
}

// ModernConfig configures the keyring-backed store.
type ModernConfig struct {
	Enabled *bool  `yaml:"enabled,omitempty"`
	Service string `yaml:"service,omitempty"`
}

// RouterConfig tunes the router.
type RouterConfig struct {
	ParentCacheSize int `yaml:"parent_cache_size,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Debug   bool `yaml:"debug,omitempty"`
	NoColor bool `yaml:"no_color,omitempty"`
}

// MetricsConfig controls Prometheus instrumentation.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// LegacyEnabled reports whether the legacy store should be opened. Unset means yes.
func (d *Definition) LegacyEnabled() bool {
	return d.Legacy.Enabled == nil || *d.Legacy.Enabled
}

// ModernEnabled reports whether the modern store should be used. Unset means yes.
func (d *Definition) ModernEnabled() bool {
	return d.Modern.Enabled == nil || *d.Modern.Enabled
}

// Default returns the definition used when no configuration file exists.
func Default() *Definition {
	d := &Definition{}
	d.applyDefaults()
	return d
}

func (d *Definition) applyDefaults() {
	if d.Legacy.Path == "" && !d.Legacy.InMemory {
		d.Legacy.Path = defaultLegacyPath()
	}
	d.Legacy.Path = expandHome(d.Legacy.Path)
	if d.Legacy.DefaultKeychain == "" {
		d.Legacy.DefaultKeychain = badgerstore.DefaultKeychain
	}
	if d.Modern.Service == "" {
		d.Modern.Service = keyringstore.DefaultService
	}
	if d.Router.ParentCacheSize == 0 {
		d.Router.ParentCacheSize = DefaultParentCacheSize
	}
}

func defaultLegacyPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "credroute", "legacy")
	}
	return filepath.Join(".credroute", "legacy")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// Load reads, validates and parses the credroute.yaml file
func (c *Config) Load() error {
	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			if c.Optional {
				if c.Logger != nil {
					c.Logger.Debug("No configuration at %s, using defaults", c.Path)
				}
				c.Definition = Default()
				return nil
			}
			return dserrors.ConfigError{
				Field:      "path",
				Value:      c.Path,
				Message:    "configuration file not found",
				Suggestion: "Create the file or drop --config to use the defaults",
			}
		}
		return dserrors.UserError{
			Message:    "Failed to read configuration file",
			Details:    err.Error(),
			Suggestion: "Check file permissions and path",
			Err:        err,
		}
	}

	def, err := Parse(data)
	if err != nil {
		return err
	}
	c.Definition = def
	return nil
}

// Parse validates a YAML document against the configuration schema and decodes
// it, filling in defaults.
func Parse(data []byte) (*Definition, error) {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, dserrors.ConfigError{
			Message:    "invalid YAML syntax in configuration file",
			Suggestion: "Check for indentation errors, missing quotes, or invalid characters. Use a YAML validator",
		}
	}
	if raw == nil {
		return Default(), nil
	}
	if err := validate(raw); err != nil {
		return nil, err
	}

	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, dserrors.ConfigError{
			Message:    fmt.Sprintf("cannot decode configuration: %v", err),
			Suggestion: "Check value types against the documented configuration keys",
		}
	}
	if def.Legacy.InMemory && def.Legacy.Path != "" {
		return nil, dserrors.ConfigError{
			Field:      "legacy.path",
			Value:      def.Legacy.Path,
			Message:    "a path cannot be combined with in_memory",
			Suggestion: "Remove either legacy.path or legacy.in_memory",
		}
	}
	def.applyDefaults()
	return &def, nil
}

func validate(doc interface{}) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewGoLoader(doc),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}

	first := result.Errors()[0]
	var messages []string
	for _, desc := range result.Errors() {
		messages = append(messages, desc.String())
	}
	return dserrors.ConfigError{
		Field:      first.Field(),
		Value:      first.Value(),
		Message:    strings.Join(messages, "; "),
		Suggestion: "Fix the listed keys in credroute.yaml",
	}
}
