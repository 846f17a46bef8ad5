// Package config provides configuration parsing for msgwire.
//
// The configuration is stored in msgwire.json (or msgwire.toml) next to the
// server. This package handles loading, saving, and validating it.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "addr": ":7350",
//	    "path": "/ws",
//	    "readLimit": 65538,
//	    "writeTimeout": "5s",
//	    "readTimeout": "60s"
//	  },
//	  "metrics": {"enabled": true, "path": "/metrics", "namespace": "msgwire"},
//	  "tracing": {"tracerName": "msgwire"},
//	  "pool": {"maxIdleReaders": 1024, "maxIdleWriters": 256},
//	  "capture": {"dir": "./quarantine"},
//	  "log": {"level": "info", "file": "", "maxSizeMB": 100, "maxBackups": 3}
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Listening on", cfg.Server.Addr)
package config
