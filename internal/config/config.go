// Package config provides configuration management for litterbox using Viper
// for loading from files, environment variables, and command-line flags.
//
// The configuration system supports YAML files (.litterbox.yml by default),
// environment variable overrides with the LITTERBOX_ prefix, and validation.
// It covers the preview server, the document files and quiet period of the
// live preview, the change bus, the sandbox seed and host mirror, and logging.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/conneroisu/litterbox/internal/compositor"
	"github.com/conneroisu/litterbox/internal/logging"
	"github.com/conneroisu/litterbox/internal/notify"
	"github.com/conneroisu/litterbox/internal/preview"
	"github.com/conneroisu/litterbox/internal/workspace"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "LITTERBOX"

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".litterbox.yml"

type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Preview PreviewConfig `mapstructure:"preview" yaml:"preview"`
	Notify  NotifyConfig  `mapstructure:"notify" yaml:"notify"`
	Sandbox SandboxConfig `mapstructure:"sandbox" yaml:"sandbox"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host" validate:"required"`
	Port           int      `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

type PreviewConfig struct {
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period" validate:"gte=0"`
	MarkupFile  string        `mapstructure:"markup_file" yaml:"markup_file" validate:"required,startswith=/"`
	StyleFile   string        `mapstructure:"style_file" yaml:"style_file" validate:"required,startswith=/"`
	ScriptFile  string        `mapstructure:"script_file" yaml:"script_file" validate:"required,startswith=/"`
	ScriptName  string        `mapstructure:"script_name" yaml:"script_name" validate:"required"`
}

type NotifyConfig struct {
	FlushQuantum time.Duration `mapstructure:"flush_quantum" yaml:"flush_quantum" validate:"gt=0"`
}

type SandboxConfig struct {
	Seed        bool   `mapstructure:"seed" yaml:"seed"`
	MirrorDir   string `mapstructure:"mirror_dir" yaml:"mirror_dir"`
	ScratchFile string `mapstructure:"scratch_file" yaml:"scratch_file" validate:"omitempty,startswith=/"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `mapstructure:"format" yaml:"format" validate:"oneof=text json"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	ws := workspace.DefaultOptions()

	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			Open:           true,
			AllowedOrigins: []string{"localhost:*", "127.0.0.1:*"},
		},
		Preview: PreviewConfig{
			QuietPeriod: ws.QuietPeriod,
			MarkupFile:  ws.MarkupFile,
			StyleFile:   ws.StyleFile,
			ScriptFile:  ws.ScriptFile,
			ScriptName:  compositor.DefaultScriptName,
		},
		Notify: NotifyConfig{
			FlushQuantum: notify.DefaultQuantum,
		},
		Sandbox: SandboxConfig{
			Seed:        ws.Seed,
			ScratchFile: ws.ScratchFile,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every key with its default value, so environment
// overrides reach Unmarshal even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.allowed_origins", d.Server.AllowedOrigins)

	v.SetDefault("preview.quiet_period", d.Preview.QuietPeriod)
	v.SetDefault("preview.markup_file", d.Preview.MarkupFile)
	v.SetDefault("preview.style_file", d.Preview.StyleFile)
	v.SetDefault("preview.script_file", d.Preview.ScriptFile)
	v.SetDefault("preview.script_name", d.Preview.ScriptName)

	v.SetDefault("notify.flush_quantum", d.Notify.FlushQuantum)

	v.SetDefault("sandbox.seed", d.Sandbox.Seed)
	v.SetDefault("sandbox.mirror_dir", d.Sandbox.MirrorDir)
	v.SetDefault("sandbox.scratch_file", d.Sandbox.ScratchFile)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// ConfigureEnv makes LITTERBOX_SERVER_PORT override server.port and so on.
func ConfigureEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads, normalizes and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	// A --no-open flag bound as server.no-open wins over server.open.
	if v.IsSet("server.no-open") && v.GetBool("server.no-open") {
		cfg.Server.Open = false
	}

	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(strings.TrimSpace(cfg.Logging.Format))

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Address returns host:port for the preview server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// NewLogger builds the logger described by the logging section.
func (c *Config) NewLogger(out io.Writer) logging.Logger {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LevelInfo
	}

	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: c.Logging.Format,
		Output: out,
	})
}

// WorkspaceOptions maps the preview, notify and sandbox sections onto
// workspace options.
func (c *Config) WorkspaceOptions(logger logging.Logger) workspace.Options {
	comp := compositor.New(
		compositor.WithScriptName(c.Preview.ScriptName),
		compositor.WithLogger(logger),
	)

	return workspace.Options{
		MarkupFile:     c.Preview.MarkupFile,
		StyleFile:      c.Preview.StyleFile,
		ScriptFile:     c.Preview.ScriptFile,
		ScratchFile:    c.Sandbox.ScratchFile,
		Seed:           c.Sandbox.Seed,
		QuietPeriod:    c.Preview.QuietPeriod,
		FlushQuantum:   c.Notify.FlushQuantum,
		SessionOptions: []preview.Option{preview.WithCompositor(comp)},
		Logger:         logger,
	}
}
