// Package config provides configuration management for podev using Viper for
// flexible configuration loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files and environment variable
// overrides with the PODEV_ prefix. It manages the application identity
// (name, mode, port), the podlet route surface (content, fallback, manifest)
// and development options such as the rendering mode and the fixed asset/
// reload port.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Mode values for app.mode.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

type Config struct {
	App    AppConfig    `yaml:"app" mapstructure:"app"`
	Podlet PodletConfig `yaml:"podlet" mapstructure:"podlet"`
	Dev    DevConfig    `yaml:"dev" mapstructure:"dev"`
	Build  BuildConfig  `yaml:"build" mapstructure:"build"`
}

type AppConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
	Port int    `yaml:"port" mapstructure:"port"`
	Host string `yaml:"host" mapstructure:"host"`
	Mode string `yaml:"mode" mapstructure:"mode"`
	Base string `yaml:"base" mapstructure:"base"`
	Root string `yaml:"root" mapstructure:"root"`
}

type PodletConfig struct {
	Content  string `yaml:"content" mapstructure:"content"`
	Fallback string `yaml:"fallback" mapstructure:"fallback"`
	Manifest string `yaml:"manifest" mapstructure:"manifest"`
}

type DevConfig struct {
	RenderMode string `yaml:"renderMode" mapstructure:"renderMode"`
	AssetPort  int    `yaml:"assetPort" mapstructure:"assetPort"`
}

type BuildConfig struct {
	// External lists import specifiers left unbundled in SSR bundles. The
	// component rendering library itself always stays external.
	External []string `yaml:"external" mapstructure:"external"`
	Minify   bool     `yaml:"minify" mapstructure:"minify"`
}

// Load reads configuration from viper (file, environment and bound flags),
// applies defaults and validates the result.
func Load() (*Config, error) {
	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.App.Name == "" {
		config.App.Name = "podlet"
	}
	if config.App.Port == 0 {
		config.App.Port = 4000
	}
	if config.App.Host == "" {
		config.App.Host = "localhost"
	}
	if config.App.Mode == "" {
		config.App.Mode = ModeDevelopment
	}
	if config.App.Base == "" {
		config.App.Base = "/"
	}
	if config.App.Root == "" {
		config.App.Root = "."
	}

	if config.Podlet.Content == "" {
		config.Podlet.Content = "/"
	}
	if config.Podlet.Fallback == "" {
		config.Podlet.Fallback = "/fallback"
	}
	if config.Podlet.Manifest == "" {
		config.Podlet.Manifest = "/manifest.json"
	}

	if config.Dev.RenderMode == "" {
		config.Dev.RenderMode = "hydrate"
	}
	if config.Dev.AssetPort == 0 {
		config.Dev.AssetPort = 6935
	}

	if len(config.Build.External) == 0 {
		config.Build.External = []string{"lit"}
	}
	// Production bundles are minified unless explicitly disabled.
	if !viper.IsSet("build.minify") {
		config.Build.Minify = config.App.Mode == ModeProduction
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Development reports whether the process runs in development mode.
func (c *Config) Development() bool {
	return c.App.Mode != ModeProduction
}

// ClientDir is the output directory for compiled client assets.
func (c *Config) ClientDir() string {
	return filepath.Join(c.App.Root, "dist", "client")
}

// ServerDir is the output directory for compiled SSR bundles.
func (c *Config) ServerDir() string {
	return filepath.Join(c.App.Root, "dist", "server")
}

// validateConfig validates configuration values for security and correctness
func validateConfig(config *Config) error {
	if config.App.Port < 0 || config.App.Port > 65535 {
		return fmt.Errorf("app.port %d is not in valid range 0-65535", config.App.Port)
	}
	if config.Dev.AssetPort < 0 || config.Dev.AssetPort > 65535 {
		return fmt.Errorf("dev.assetPort %d is not in valid range 0-65535", config.Dev.AssetPort)
	}
	if config.App.Port != 0 && config.App.Port == config.Dev.AssetPort {
		return fmt.Errorf("app.port and dev.assetPort must differ, both are %d", config.App.Port)
	}

	if config.App.Mode != ModeDevelopment && config.App.Mode != ModeProduction {
		return fmt.Errorf("app.mode %q is not one of development, production", config.App.Mode)
	}

	switch config.Dev.RenderMode {
	case "ssr-only", "csr-only", "hydrate":
	default:
		return fmt.Errorf("dev.renderMode %q is not one of ssr-only, csr-only, hydrate", config.Dev.RenderMode)
	}

	if err := validateHost(config.App.Host); err != nil {
		return fmt.Errorf("app.host: %w", err)
	}
	if err := validateRoot(config.App.Root); err != nil {
		return fmt.Errorf("app.root: %w", err)
	}

	for key, route := range map[string]string{
		"podlet.content":  config.Podlet.Content,
		"podlet.fallback": config.Podlet.Fallback,
		"podlet.manifest": config.Podlet.Manifest,
	} {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("%s %q must start with /", key, route)
		}
	}

	return nil
}

func validateHost(host string) error {
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}
	return nil
}

func validateRoot(root string) error {
	cleanPath := filepath.Clean(root)
	if strings.Contains(cleanPath, "..") {
		return fmt.Errorf("contains path traversal: %s", root)
	}
	return nil
}
