package config

import (
	"encoding/json"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/fundsavy/fundsavy/internal/errors"
)

const (
	// ConfigFileBase is the configuration file name without extension.
	ConfigFileBase = "fundsavy"

	// DefaultAddr is the default server listen address.
	DefaultAddr = "localhost:8080"

	// DefaultDB is the default local groups database.
	DefaultDB = "db.json"

	// DefaultGroupsTimeout bounds each group retrieval.
	DefaultGroupsTimeout = 10 * time.Second

	// DefaultCookieName is the default session cookie name.
	DefaultCookieName = "fundsavy_session"

	// DefaultMetricsNamespace prefixes every Prometheus metric.
	DefaultMetricsNamespace = "fundsavy"

	// DefaultTracerName names the OpenTelemetry tracer.
	DefaultTracerName = "fundsavy"
)

// Environment variables that override file settings.
const (
	EnvAddr         = "FUNDSAVY_ADDR"
	EnvGroupsSource = "FUNDSAVY_GROUPS_SOURCE"
	EnvLogLevel     = "FUNDSAVY_LOG_LEVEL"
	EnvGoogleSecret = "FUNDSAVY_GOOGLE_CLIENT_SECRET"
)

// searchOrder lists the extensions Load tries, in order.
var searchOrder = []string{".json", ".yaml", ".yml", ".toml"}

// Config is the complete fundsavy configuration.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `json:"server" yaml:"server" toml:"server"`

	// Groups configures where group documents come from.
	Groups GroupsConfig `json:"groups" yaml:"groups" toml:"groups"`

	// Auth contains session and sign-in settings.
	Auth AuthConfig `json:"auth" yaml:"auth" toml:"auth"`

	// S3 configures the client used for s3:// group sources.
	S3 S3Config `json:"s3" yaml:"s3" toml:"s3"`

	// Telemetry configures metrics and tracing names.
	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry" toml:"telemetry"`

	// Log configures the default logger.
	Log LogConfig `json:"log" yaml:"log" toml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address (host:port).
	Addr string `json:"addr,omitempty" yaml:"addr,omitempty" toml:"addr,omitempty"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout Duration `json:"shutdownTimeout,omitempty" yaml:"shutdownTimeout,omitempty" toml:"shutdownTimeout,omitempty"`
}

// GroupsConfig configures the group source.
type GroupsConfig struct {
	// Source is an http(s) URL or s3://bucket/prefix to read groups from.
	// Empty serves and reads the local database.
	Source string `json:"source,omitempty" yaml:"source,omitempty" toml:"source,omitempty"`

	// DB is the local json-server style database file.
	DB string `json:"db,omitempty" yaml:"db,omitempty" toml:"db,omitempty"`

	// Watch reloads DB when it changes.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty" toml:"watch,omitempty"`

	// Timeout bounds each retrieval.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	// Retries is the number of retries before a screen shows an error.
	Retries int `json:"retries,omitempty" yaml:"retries,omitempty" toml:"retries,omitempty"`
}

// AuthConfig contains session and sign-in settings.
type AuthConfig struct {
	SessionTTL     Duration `json:"sessionTTL,omitempty" yaml:"sessionTTL,omitempty" toml:"sessionTTL,omitempty"`
	CookieName     string   `json:"cookieName,omitempty" yaml:"cookieName,omitempty" toml:"cookieName,omitempty"`
	CodeTTL        Duration `json:"codeTTL,omitempty" yaml:"codeTTL,omitempty" toml:"codeTTL,omitempty"`
	ResendInterval Duration `json:"resendInterval,omitempty" yaml:"resendInterval,omitempty" toml:"resendInterval,omitempty"`

	// Google enables Google sign-in when set.
	Google *GoogleConfig `json:"google,omitempty" yaml:"google,omitempty" toml:"google,omitempty"`
}

// GoogleConfig contains OAuth client settings.
type GoogleConfig struct {
	ClientID     string `json:"clientId" yaml:"clientId" toml:"clientId"`
	ClientSecret string `json:"clientSecret" yaml:"clientSecret" toml:"clientSecret"`
	RedirectURL  string `json:"redirectUrl" yaml:"redirectUrl" toml:"redirectUrl"`
}

// S3Config configures the S3 client.
type S3Config struct {
	Region       string `json:"region,omitempty" yaml:"region,omitempty" toml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty" toml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"usePathStyle,omitempty" yaml:"usePathStyle,omitempty" toml:"usePathStyle,omitempty"`
}

// TelemetryConfig configures metrics and tracing.
type TelemetryConfig struct {
	MetricsNamespace string `json:"metricsNamespace,omitempty" yaml:"metricsNamespace,omitempty" toml:"metricsNamespace,omitempty"`
	TracerName       string `json:"tracerName,omitempty" yaml:"tracerName,omitempty" toml:"tracerName,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `json:"level,omitempty" yaml:"level,omitempty" toml:"level,omitempty"`

	// Format is text or json.
	Format string `json:"format,omitempty" yaml:"format,omitempty" toml:"format,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load reads configuration from dir, trying fundsavy.json, .yaml, .yml and
// .toml in that order.
func Load(dir string) (*Config, error) {
	for _, ext := range searchOrder {
		path := filepath.Join(dir, ConfigFileBase+ext)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E101").
		WithDetail("No " + ConfigFileBase + ".json, .yaml, .yml or .toml found in " + dir)
}

// LoadFile reads configuration from the specified file path. The format is
// chosen by extension.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E101").Wrap(err)
		}
		return nil, errors.New("E102").Wrap(err)
	}

	cfg := &Config{}
	name := filepath.Base(path)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, errors.New("E103").WithDetail("Cannot read " + name)
	}
	if err != nil {
		return nil, errors.New("E102").
			WithDetail("Failed to parse " + name + ": " + err.Error()).
			WithSuggestion("Check the syntax of " + name)
	}

	cfg.configPath = path
	cfg.applyDefaults()
	return cfg, nil
}

// LoadOrDefault loads the configuration from dir, returning defaults when
// no file exists.
func LoadOrDefault(dir string) (*Config, error) {
	cfg, err := Load(dir)
	if errors.Code(err) == "E101" {
		return New(), nil
	}
	return cfg, err
}

// ApplyEnv overrides settings from environment variables read with getenv.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvAddr); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(EnvGroupsSource); v != "" {
		c.Groups.Source = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := getenv(EnvGoogleSecret); v != "" && c.Auth.Google != nil {
		c.Auth.Google.ClientSecret = v
	}
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// Dir returns the directory containing the config file.
func (c *Config) Dir() string {
	if c.configPath == "" {
		return ""
	}
	return filepath.Dir(c.configPath)
}

// DBPath returns the groups database path, relative to the config file.
func (c *Config) DBPath() string {
	if filepath.IsAbs(c.Groups.DB) || c.Dir() == "" {
		return c.Groups.DB
	}
	return filepath.Join(c.Dir(), c.Groups.DB)
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = Duration(10 * time.Second)
	}

	if c.Groups.DB == "" {
		c.Groups.DB = DefaultDB
	}
	if c.Groups.Timeout == 0 {
		c.Groups.Timeout = Duration(DefaultGroupsTimeout)
	}

	if c.Auth.SessionTTL == 0 {
		c.Auth.SessionTTL = Duration(24 * time.Hour)
	}
	if c.Auth.CookieName == "" {
		c.Auth.CookieName = DefaultCookieName
	}
	if c.Auth.CodeTTL == 0 {
		c.Auth.CodeTTL = Duration(5 * time.Minute)
	}
	if c.Auth.ResendInterval == 0 {
		c.Auth.ResendInterval = Duration(30 * time.Second)
	}

	if c.Telemetry.MetricsNamespace == "" {
		c.Telemetry.MetricsNamespace = DefaultMetricsNamespace
	}
	if c.Telemetry.TracerName == "" {
		c.Telemetry.TracerName = DefaultTracerName
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return errors.New("E107").
			WithDetail("Invalid server.addr " + c.Server.Addr + ": " + err.Error())
	}

	if c.Groups.Source != "" {
		u, err := url.Parse(c.Groups.Source)
		if err != nil {
			return errors.New("E104").Wrap(err)
		}
		switch u.Scheme {
		case "http", "https":
			if u.Host == "" {
				return errors.New("E104").WithDetail("groups.source has no host: " + c.Groups.Source)
			}
		case "s3":
			if u.Host == "" {
				return errors.New("E104").WithDetail("groups.source has no bucket: " + c.Groups.Source)
			}
		default:
			return errors.New("E104").WithDetail("Unsupported scheme " + u.Scheme + " in groups.source")
		}
	}

	durations := map[string]Duration{
		"server.shutdownTimeout": c.Server.ShutdownTimeout,
		"groups.timeout":         c.Groups.Timeout,
		"auth.sessionTTL":        c.Auth.SessionTTL,
		"auth.codeTTL":           c.Auth.CodeTTL,
	}
	for name, d := range durations {
		if d <= 0 {
			return errors.New("E105").WithDetail(name + " must be positive, got " + d.String())
		}
	}
	if c.Auth.ResendInterval < 0 {
		return errors.New("E105").WithDetail("auth.resendInterval must not be negative")
	}
	if c.Groups.Retries < 0 {
		return errors.New("E105").WithDetail("groups.retries must not be negative")
	}

	if g := c.Auth.Google; g != nil {
		if g.ClientID == "" || g.ClientSecret == "" || g.RedirectURL == "" {
			return errors.New("E106")
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return errors.New("E108").WithDetail("Unknown log level " + c.Log.Level)
	}

	return nil
}

// Duration is a time.Duration written as a string such as "30s" in
// configuration files.
type Duration time.Duration

// D returns d as a time.Duration.
func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
