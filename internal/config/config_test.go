package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vango-dev/msgwire/internal/errors"
)

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Server.Addr != DefaultAddr {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, DefaultAddr)
	}
	if cfg.Server.ReadLimit != DefaultReadLimit {
		t.Errorf("Server.ReadLimit = %d, want %d", cfg.Server.ReadLimit, DefaultReadLimit)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should default to true")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("New().Validate() = %v, want nil", err)
	}
}

func TestLoadJSON(t *testing.T) {
	tmpDir := t.TempDir()

	// Test loading non-existent config
	_, err := Load(tmpDir)
	assertCode(t, err, "E120")

	configJSON := `{
  "server": {
    "addr": "127.0.0.1:9000",
    "readLimit": 1024,
    "writeTimeout": "2s"
  },
  "metrics": {
    "enabled": false
  },
  "capture": {
    "dir": "./q"
  },
  "log": {
    "level": "debug"
  }
}
`
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(configJSON), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9000" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, "127.0.0.1:9000")
	}
	if cfg.Server.Path != DefaultPath {
		t.Errorf("Server.Path = %q, want default %q", cfg.Server.Path, DefaultPath)
	}
	if cfg.Server.ReadLimit != 1024 {
		t.Errorf("Server.ReadLimit = %d, want 1024", cfg.Server.ReadLimit)
	}
	if cfg.WriteTimeout() != 2*time.Second {
		t.Errorf("WriteTimeout() = %v, want 2s", cfg.WriteTimeout())
	}
	if cfg.ReadTimeout() != 60*time.Second {
		t.Errorf("ReadTimeout() = %v, want 60s", cfg.ReadTimeout())
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled should be false")
	}
	if cfg.Metrics.Path != DefaultMetricsPath {
		t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, DefaultMetricsPath)
	}
	if cfg.Capture.Dir != "./q" {
		t.Errorf("Capture.Dir = %q, want ./q", cfg.Capture.Dir)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Path() != filepath.Join(tmpDir, ConfigFileName) {
		t.Errorf("Path() = %q", cfg.Path())
	}
}

func TestLoadTOML(t *testing.T) {
	tmpDir := t.TempDir()

	configTOML := `
[server]
addr = ":8000"
path = "/wire"

[pool]
maxIdleReaders = 10
maxIdleWriters = 5

[capture]
s3Bucket = "quarantine-bucket"
s3Region = "eu-west-1"
`
	if err := os.WriteFile(filepath.Join(tmpDir, TOMLConfigFileName), []byte(configTOML), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Server.Addr != ":8000" || cfg.Server.Path != "/wire" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Pool.MaxIdleReaders != 10 || cfg.Pool.MaxIdleWriters != 5 {
		t.Errorf("Pool = %+v", cfg.Pool)
	}
	if cfg.Capture.S3Bucket != "quarantine-bucket" || cfg.Capture.S3Prefix != "quarantine/" {
		t.Errorf("Capture = %+v", cfg.Capture)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadPrefersJSON(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ConfigFileName), []byte(`{"server":{"addr":":1"}}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, TOMLConfigFileName), []byte("[server]\naddr = \":2\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":1" {
		t.Errorf("Server.Addr = %q, want %q", cfg.Server.Addr, ":1")
	}
}

func TestLoadFileErrors(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := LoadFile(filepath.Join(tmpDir, "msgwire.yaml"))
	assertCode(t, err, "E123")

	_, err = LoadFile(filepath.Join(tmpDir, "missing.json"))
	assertCode(t, err, "E120")

	bad := filepath.Join(tmpDir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadFile(bad)
	assertCode(t, err, "E121")

	badTOML := filepath.Join(tmpDir, "bad.toml")
	if err := os.WriteFile(badTOML, []byte("[server\n"), 0644); err != nil {
		t.Fatal(err)
	}
	_, err = LoadFile(badTOML)
	assertCode(t, err, "E121")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		detail string
	}{
		{"path without slash", func(c *Config) { c.Server.Path = "ws" }, "server.path"},
		{"metrics path clash", func(c *Config) { c.Metrics.Path = c.Server.Path }, "must differ"},
		{"tiny read limit", func(c *Config) { c.Server.ReadLimit = 2 }, "readLimit"},
		{"bad duration", func(c *Config) { c.Server.WriteTimeout = "soon" }, "server.writeTimeout"},
		{"negative duration", func(c *Config) { c.Server.ReadTimeout = "-1s" }, "server.readTimeout"},
		{"negative pool", func(c *Config) { c.Pool.MaxIdleReaders = -1 }, "pool limits"},
		{"two capture stores", func(c *Config) { c.Capture.Dir = "q"; c.Capture.S3Bucket = "b" }, "mutually exclusive"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			assertCode(t, err, "E122")

			var e *errors.Error
			if stderrors.As(err, &e) && !strings.Contains(e.Detail, tt.detail) {
				t.Errorf("Detail = %q, want it to mention %q", e.Detail, tt.detail)
			}
		})
	}
}

func TestSaveToRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()

	for _, name := range []string{"out.json", "out.toml"} {
		t.Run(name, func(t *testing.T) {
			cfg := New()
			cfg.Server.Addr = ":4242"
			cfg.Capture.Dir = "captures"

			path := filepath.Join(tmpDir, name)
			if err := cfg.SaveTo(path); err != nil {
				t.Fatalf("SaveTo error: %v", err)
			}
			if cfg.Path() != path {
				t.Errorf("Path() = %q, want %q", cfg.Path(), path)
			}

			loaded, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile error: %v", err)
			}
			if loaded.Server.Addr != ":4242" || loaded.Capture.Dir != "captures" {
				t.Errorf("round trip lost values: %+v", loaded)
			}
		})
	}

	if err := New().SaveTo(filepath.Join(tmpDir, "out.ini")); err == nil {
		t.Error("SaveTo(.ini) should fail")
	}
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	var e *errors.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("error = %v, want *errors.Error with code %s", err, code)
	}
	if e.Code != code {
		t.Errorf("Code = %q, want %q (%v)", e.Code, code, err)
	}
}
