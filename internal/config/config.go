// Package config loads the homesite settings.
//
// Settings are layered, lowest precedence first: built-in defaults, an
// optional YAML file and the environment. Command line flags are applied
// on top by the caller.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"homesite/internal/security"
	"homesite/pkg/fileutil"
)

// FileName is the name searched for in the default config locations.
const FileName = "homesite.yaml"

const (
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 6900
	DefaultDatabaseURL     = "./homesite.db"
	DefaultUserAgent       = "homesite-updater"
	DefaultBinaryName      = "homesite"
	DefaultDeployRoot      = "/srv/homesite"
	DefaultCommandTimeout  = 60 * time.Second
	DefaultHTTPTimeout     = 60 * time.Second
	DefaultRestartDelay    = 2 * time.Second
	DefaultRestartExitCode = 75
	DefaultKeepReleases    = 5
	DefaultMaxUploadBytes  = 32 << 20
	DefaultFailurePolicy   = "report"
)

// Config holds every setting of the server and the CLI.
type Config struct {
	Host    string `yaml:"host" env:"HOMESITE_HOST"`
	Port    int    `yaml:"port" env:"HOMESITE_PORT"`
	LogFile string `yaml:"log_file" env:"HOMESITE_LOG_FILE"`

	// DatabaseURL is a SQLite file path or a postgres:// URL.
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`

	WebhookSecret string `yaml:"webhook_secret" env:"WEBHOOK_SECRET"`
	GalleryToken  string `yaml:"gallery_token" env:"GALLERY_TOKEN"`
	APIToken      string `yaml:"api_token" env:"API_TOKEN"`
	GitHubToken   string `yaml:"github_token" env:"GITHUB_TOKEN"`
	GitHubAPIURL  string `yaml:"github_api_url" env:"GITHUB_API_URL"`
	UserAgent     string `yaml:"user_agent" env:"USER_AGENT"`

	SiteRoot    string `yaml:"site_root" env:"SITE_ROOT"`
	TemplateDir string `yaml:"template_dir" env:"TEMPLATE_DIR"`
	StaticDir   string `yaml:"static_dir" env:"STATIC_DIR"`
	GalleryDir  string `yaml:"gallery_dir" env:"GALLERY_DIR"`

	DeployRoot     string `yaml:"deploy_root" env:"DEPLOY_ROOT"`
	BinaryName     string `yaml:"binary_name" env:"BINARY_NAME"`
	PullCommand    string `yaml:"pull_command" env:"PULL_COMMAND"`
	ExtractCommand string `yaml:"extract_command" env:"EXTRACT_COMMAND"`
	KeepReleases   int    `yaml:"keep_releases" env:"KEEP_RELEASES"`

	CommandTimeout  time.Duration `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	HTTPTimeout     time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	RestartDelay    time.Duration `yaml:"restart_delay" env:"RESTART_DELAY"`
	RestartExitCode int           `yaml:"restart_exit_code" env:"RESTART_EXIT_CODE"`

	FailurePolicy  string `yaml:"update_failure_policy" env:"UPDATE_FAILURE_POLICY"`
	ExposeOutput   bool   `yaml:"expose_output" env:"EXPOSE_OUTPUT"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
}

// Defaults returns the built-in settings.
func Defaults() *Config {
	return &Config{
		Host:            DefaultHost,
		Port:            DefaultPort,
		DatabaseURL:     DefaultDatabaseURL,
		UserAgent:       DefaultUserAgent,
		SiteRoot:        ".",
		DeployRoot:      DefaultDeployRoot,
		BinaryName:      DefaultBinaryName,
		KeepReleases:    DefaultKeepReleases,
		CommandTimeout:  DefaultCommandTimeout,
		HTTPTimeout:     DefaultHTTPTimeout,
		RestartDelay:    DefaultRestartDelay,
		RestartExitCode: DefaultRestartExitCode,
		FailurePolicy:   DefaultFailurePolicy,
		MaxUploadBytes:  DefaultMaxUploadBytes,
	}
}

// Load builds the configuration from the defaults, the YAML file at path
// and the environment. An empty path searches the default locations; no
// file at all is not an error.
func Load(ctx context.Context, path string) (*Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lu envconfig.Lookuper) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = fileutil.FindConfigOptional(FileName)
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         lu,
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	cfg.derive()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// The file may hold the webhook secret and tokens.
	if security.IsWorldWritable(info.Mode().Perm()) {
		return fmt.Errorf("config file %s is world writable", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF.
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}
	return nil
}

// derive fills the directories that default relative to SiteRoot.
func (c *Config) derive() {
	if c.TemplateDir == "" {
		c.TemplateDir = filepath.Join(c.SiteRoot, "templates")
	}
	if c.StaticDir == "" {
		c.StaticDir = filepath.Join(c.SiteRoot, "static")
	}
	if c.GalleryDir == "" {
		c.GalleryDir = filepath.Join(c.StaticDir, "gallery")
	}
	if c.APIToken == "" {
		c.APIToken = c.GalleryToken
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every problem with the configuration the server needs
// to start.
func (c *Config) Validate() error {
	var errs []error

	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	} else if err := security.ValidateSecret(c.WebhookSecret); err != nil {
		errs = append(errs, fmt.Errorf("WEBHOOK_SECRET: %w", err))
	}

	if c.GalleryToken == "" {
		errs = append(errs, errors.New("GALLERY_TOKEN is required"))
	} else if security.IsWeakSecret(c.GalleryToken) {
		errs = append(errs, errors.New("GALLERY_TOKEN is too weak"))
	}

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("HOMESITE_PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	if c.BinaryName == "" || strings.ContainsAny(c.BinaryName, `/\`) {
		errs = append(errs, fmt.Errorf("BINARY_NAME must be a plain file name, got %q", c.BinaryName))
	}
	if c.DeployRoot != "" && !filepath.IsAbs(c.DeployRoot) {
		errs = append(errs, fmt.Errorf("DEPLOY_ROOT must be absolute, got %q", c.DeployRoot))
	}

	if c.CommandTimeout <= 0 {
		errs = append(errs, fmt.Errorf("COMMAND_TIMEOUT must be positive, got %s", c.CommandTimeout))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout))
	}
	if c.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("RESTART_DELAY cannot be negative, got %s", c.RestartDelay))
	}
	if c.RestartExitCode < 0 || c.RestartExitCode > 125 {
		errs = append(errs, fmt.Errorf("RESTART_EXIT_CODE must be between 0 and 125, got %d", c.RestartExitCode))
	}
	if c.KeepReleases < 2 {
		errs = append(errs, fmt.Errorf("KEEP_RELEASES must be at least 2, got %d", c.KeepReleases))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", c.MaxUploadBytes))
	}

	switch c.FailurePolicy {
	case "report", "restart":
	default:
		errs = append(errs, fmt.Errorf("UPDATE_FAILURE_POLICY must be 'report' or 'restart', got %q", c.FailurePolicy))
	}

	return errors.Join(errs...)
}
