package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	derrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "assetpipe.yaml"

// Config represents the application configuration.
type Config struct {
	Site    SiteConfig    `yaml:"site"`
	Sources SourcesConfig `yaml:"sources"`
	Output  OutputConfig  `yaml:"output"`
	Dev     DevConfig     `yaml:"dev"`
	Build   BuildConfig   `yaml:"build"`
	Logging LoggingConfig `yaml:"logging"`
}

// SiteConfig describes the published site.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

// SourcesConfig names one source root per transform step.
type SourcesConfig struct {
	Templates   string `yaml:"templates"`
	Styles      string `yaml:"styles"`
	StyleEntry  string `yaml:"style_entry"`
	Scripts     string `yaml:"scripts"`
	ScriptEntry string `yaml:"script_entry"`
	Images      string `yaml:"images"`
}

// OutputConfig represents output configuration.
type OutputConfig struct {
	Directory string `yaml:"directory"`
	Mirror    string `yaml:"mirror,omitempty"` // written only by build
	Clean     bool   `yaml:"clean"`            // clean primary root before build
}

// DevConfig configures the preview server and watch loop.
type DevConfig struct {
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	LiveReload *bool    `yaml:"live_reload,omitempty"`
	Debounce   Duration `yaml:"debounce"`
	MaxWait    Duration `yaml:"max_wait"`
	Metrics    bool     `yaml:"metrics"`
}

// LiveReloadEnabled reports whether browsers should be told to reload.
func (d DevConfig) LiveReloadEnabled() bool {
	return d.LiveReload == nil || *d.LiveReload
}

// BuildConfig tunes collaborators and scheduling.
type BuildConfig struct {
	MaxParallel  int    `yaml:"max_parallel"` // 0 = unlimited
	ScriptTarget string `yaml:"script_target"`
	ImageQuality int    `yaml:"image_quality"` // JPEG quality when LossyJPEG is set
	// LossyJPEG re-encodes JPEGs at ImageQuality. Off by default: JPEGs are
	// published unchanged.
	LossyJPEG bool `yaml:"lossy_jpeg"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Duration is a time.Duration decoded from strings such as "150ms".
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q: %w", node.Line, raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Load loads configuration from the specified file.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, derrors.ConfigError("configuration file not found").
			WithContext("path", configPath).
			WithCause(err).
			Build()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to read config file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}
	return Parse(data)
}

// Parse decodes and validates configuration bytes after environment expansion.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryConfig, "failed to unmarshal config").
			Fatal().
			Build()
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// Init creates a new configuration file with example content.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return derrors.ValidationError("configuration file already exists (use --force to overwrite)").
			WithContext("path", configPath).
			Build()
	}

	live := true
	example := Config{
		Site: SiteConfig{BaseURL: "https://example.com"},
		Sources: SourcesConfig{
			Templates:   "./src/templates",
			Styles:      "./src/styles",
			StyleEntry:  "styles.css",
			Scripts:     "./src/js",
			ScriptEntry: "index.js",
			Images:      "./src/img",
		},
		Output: OutputConfig{Directory: "./public", Mirror: "./docs"},
		Dev: DevConfig{
			Host:       "localhost",
			Port:       3000,
			LiveReload: &live,
			Debounce:   Duration(150 * time.Millisecond),
			MaxWait:    Duration(time.Second),
		},
		Build:   BuildConfig{ScriptTarget: "es2017", ImageQuality: 85},
		Logging: LoggingConfig{Level: LogLevelInfo, Format: LogFormatText},
	}

	data, err := yaml.Marshal(&example)
	if err != nil {
		return derrors.WrapError(err, derrors.CategoryInternal, "failed to marshal config").Build()
	}

	// #nosec G306 -- config file is not sensitive
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write config file").
			Fatal().
			WithContext("path", configPath).
			Build()
	}
	return nil
}
