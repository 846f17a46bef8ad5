package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/vango-dev/msgwire/internal/errors"
	"github.com/vango-dev/msgwire/pkg/protocol"
)

const (
	// ConfigFileName is the name of the JSON configuration file.
	ConfigFileName = "msgwire.json"

	// TOMLConfigFileName is the name of the TOML configuration file.
	TOMLConfigFileName = "msgwire.toml"

	// DefaultAddr is the default listen address of the echo server.
	DefaultAddr = ":7350"

	// DefaultPath is the default websocket endpoint.
	DefaultPath = "/ws"

	// DefaultMetricsPath is the default Prometheus scrape endpoint.
	DefaultMetricsPath = "/metrics"

	// DefaultNamespace is the default metric namespace and tracer name.
	DefaultNamespace = "msgwire"

	// DefaultReadLimit fits one maximal frame.
	DefaultReadLimit = protocol.HeaderSize + protocol.MaxPayloadSize
)

// Config represents the complete msgwire configuration.
type Config struct {
	Server  ServerConfig  `json:"server" toml:"server"`
	Metrics MetricsConfig `json:"metrics" toml:"metrics"`
	Tracing TracingConfig `json:"tracing" toml:"tracing"`
	Pool    PoolConfig    `json:"pool" toml:"pool"`
	Capture CaptureConfig `json:"capture" toml:"capture"`
	Log     LogConfig     `json:"log" toml:"log"`

	// configPath stores the path where the config was loaded from.
	configPath string
}

// ServerConfig contains echo server settings.
type ServerConfig struct {
	// Addr is the listen address.
	Addr string `json:"addr,omitempty" toml:"addr,omitempty"`

	// Path is the websocket endpoint.
	Path string `json:"path,omitempty" toml:"path,omitempty"`

	// ReadLimit is the largest datagram accepted, in bytes.
	ReadLimit int64 `json:"readLimit,omitempty" toml:"readLimit,omitempty"`

	// WriteTimeout bounds each websocket write (e.g., "5s").
	WriteTimeout string `json:"writeTimeout,omitempty" toml:"writeTimeout,omitempty"`

	// ReadTimeout closes connections idle for longer (e.g., "60s").
	ReadTimeout string `json:"readTimeout,omitempty" toml:"readTimeout,omitempty"`
}

// MetricsConfig contains Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled" toml:"enabled"`
	Path      string `json:"path,omitempty" toml:"path,omitempty"`
	Namespace string `json:"namespace,omitempty" toml:"namespace,omitempty"`
}

// TracingConfig contains OpenTelemetry settings.
type TracingConfig struct {
	TracerName string `json:"tracerName,omitempty" toml:"tracerName,omitempty"`
}

// PoolConfig caps the idle reader and writer pools.
type PoolConfig struct {
	MaxIdleReaders int `json:"maxIdleReaders,omitempty" toml:"maxIdleReaders,omitempty"`
	MaxIdleWriters int `json:"maxIdleWriters,omitempty" toml:"maxIdleWriters,omitempty"`
}

// CaptureConfig selects where malformed datagrams are quarantined.
// Dir and S3Bucket are mutually exclusive; with neither set, nothing is kept.
type CaptureConfig struct {
	Dir        string `json:"dir,omitempty" toml:"dir,omitempty"`
	S3Bucket   string `json:"s3Bucket,omitempty" toml:"s3Bucket,omitempty"`
	S3Prefix   string `json:"s3Prefix,omitempty" toml:"s3Prefix,omitempty"`
	S3Region   string `json:"s3Region,omitempty" toml:"s3Region,omitempty"`
	S3Endpoint string `json:"s3Endpoint,omitempty" toml:"s3Endpoint,omitempty"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level,omitempty" toml:"level,omitempty"`

	// File, when set, receives logs with size-based rotation.
	File       string `json:"file,omitempty" toml:"file,omitempty"`
	MaxSizeMB  int    `json:"maxSizeMB,omitempty" toml:"maxSizeMB,omitempty"`
	MaxBackups int    `json:"maxBackups,omitempty" toml:"maxBackups,omitempty"`
}

// New creates a new Config with default values.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         DefaultAddr,
			Path:         DefaultPath,
			ReadLimit:    DefaultReadLimit,
			WriteTimeout: "5s",
			ReadTimeout:  "60s",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Path:      DefaultMetricsPath,
			Namespace: DefaultNamespace,
		},
		Tracing: TracingConfig{
			TracerName: DefaultNamespace,
		},
		Pool: PoolConfig{
			MaxIdleReaders: protocol.DefaultMaxIdleReaders,
			MaxIdleWriters: protocol.DefaultMaxIdleWriters,
		},
		Capture: CaptureConfig{
			S3Prefix: "quarantine/",
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// Load reads configuration from the specified directory. It looks for
// msgwire.json first, then msgwire.toml.
func Load(dir string) (*Config, error) {
	for _, name := range []string{ConfigFileName, TOMLConfigFileName} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, errors.New("E120").
		WithDetail("No " + ConfigFileName + " or " + TOMLConfigFileName + " found in " + dir).
		WithSuggestion("Run 'msgwire serve' without --config to use defaults")
}

// LoadFile reads configuration from the specified file path. The format is
// chosen by extension.
func LoadFile(path string) (*Config, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".json" && ext != ".toml" {
		return nil, errors.New("E123").
			WithDetail("Unsupported config file extension " + ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.New("E120").
				WithDetail("No config file at " + path)
		}
		return nil, errors.New("E121").Wrap(err)
	}

	cfg := New()
	if ext == ".toml" {
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, errors.New("E121").
				WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
				WithSuggestion("Check that the file is valid TOML")
		}
	} else if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.New("E121").
			WithDetail("Failed to parse " + filepath.Base(path) + ": " + err.Error()).
			WithSuggestion("Check that the file is valid JSON")
	}

	cfg.configPath = path
	cfg.applyDefaults()

	return cfg, nil
}

// SaveTo writes the configuration to the specified path, in the format
// matching its extension.
func (c *Config) SaveTo(path string) error {
	var data []byte
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(c); err != nil {
			return errors.New("E121").Wrap(err)
		}
		data = buf.Bytes()
	case ".json":
		var err error
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return errors.New("E121").Wrap(err)
		}
		data = append(data, '\n')
	default:
		return errors.New("E123").WithDetail("Unsupported config file extension " + filepath.Ext(path))
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.New("E121").Wrap(err)
	}

	c.configPath = path
	return nil
}

// Path returns the path where the config was loaded from.
func (c *Config) Path() string {
	return c.configPath
}

// applyDefaults fills in default values for empty fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Server.Path == "" {
		c.Server.Path = DefaultPath
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "5s"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "60s"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = DefaultNamespace
	}
	if c.Tracing.TracerName == "" {
		c.Tracing.TracerName = DefaultNamespace
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.Path, "/") {
		return errors.New("E122").
			WithDetail("server.path must start with '/'")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("E122").
			WithDetail("metrics.path must start with '/'")
	}
	if c.Metrics.Enabled && c.Metrics.Path == c.Server.Path {
		return errors.New("E122").
			WithDetail("metrics.path and server.path must differ")
	}
	if c.Server.ReadLimit < protocol.HeaderSize {
		return errors.New("E122").
			WithDetail(fmt.Sprintf("server.readLimit must be at least %d bytes", protocol.HeaderSize))
	}
	for name, v := range map[string]string{
		"server.writeTimeout": c.Server.WriteTimeout,
		"server.readTimeout":  c.Server.ReadTimeout,
	} {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return errors.New("E122").
				WithDetail(fmt.Sprintf("%s must be a positive duration, got %q", name, v))
		}
	}
	if c.Pool.MaxIdleReaders < 0 || c.Pool.MaxIdleWriters < 0 {
		return errors.New("E122").
			WithDetail("pool limits must not be negative")
	}
	if c.Capture.Dir != "" && c.Capture.S3Bucket != "" {
		return errors.New("E122").
			WithDetail("capture.dir and capture.s3Bucket are mutually exclusive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("E122").
			WithDetail(fmt.Sprintf("log.level must be debug, info, warn or error, got %q", c.Log.Level))
	}
	return nil
}

// WriteTimeout returns the parsed server write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return parseDurationOr(c.Server.WriteTimeout, 5*time.Second)
}

// ReadTimeout returns the parsed server read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return parseDurationOr(c.Server.ReadTimeout, 60*time.Second)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
