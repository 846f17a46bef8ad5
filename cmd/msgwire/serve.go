package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/vango-dev/msgwire/internal/capture"
	"github.com/vango-dev/msgwire/internal/config"
	"github.com/vango-dev/msgwire/internal/errors"
	"github.com/vango-dev/msgwire/internal/metrics"
	"github.com/vango-dev/msgwire/internal/server"
	"github.com/vango-dev/msgwire/pkg/protocol"
)

func serveCmd() *cobra.Command {
	var (
		configPath string
		addr       string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket echo server",
		Long: `Run the msgwire websocket echo server.

Every datagram received is decoded frame by frame and echoed back.
Malformed datagrams are counted and, when capture is configured,
quarantined to a directory or an S3 bucket.

Configuration is read from --config, or from msgwire.json or
msgwire.toml in the working directory when present.

Examples:
  msgwire serve
  msgwire serve --addr :9000
  msgwire serve --config deploy/msgwire.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServeConfig(configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			level, file := cfg.Log.Level, cfg.Log.File
			if cmd.Flags().Changed("log-level") {
				level, _ = cmd.Flags().GetString("log-level")
			}
			if cmd.Flags().Changed("log-file") {
				file, _ = cmd.Flags().GetString("log-file")
			}
			if err := setupLogging(level, file, cfg.Log.MaxSizeMB, cfg.Log.MaxBackups); err != nil {
				return err
			}

			return runServe(cmd, cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to msgwire.json or msgwire.toml")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")

	return cmd
}

// loadServeConfig loads path, or the working directory's config file, or
// the defaults when neither exists.
func loadServeConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.Load(".")
	if err != nil {
		var e *errors.Error
		if stderrors.As(err, &e) && e.Code == "E120" {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// newStore builds the quarantine store selected by cfg, or nil.
func newStore(cfg config.CaptureConfig) (capture.Store, error) {
	switch {
	case cfg.Dir != "":
		store, err := capture.NewDirStore(cfg.Dir)
		if err != nil {
			return nil, errors.New("E142").Wrap(err)
		}
		return store, nil
	case cfg.S3Bucket != "":
		client := capture.NewS3Client(cfg.S3Region, cfg.S3Endpoint)
		return capture.NewS3Store(client, cfg.S3Bucket, cfg.S3Prefix), nil
	default:
		return nil, nil
	}
}

func runServe(cmd *cobra.Command, cfg *config.Config) error {
	out := cmd.OutOrStdout()

	protocol.SetPoolLimits(cfg.Pool.MaxIdleReaders, cfg.Pool.MaxIdleWriters)

	m := metrics.New(metrics.WithNamespace(cfg.Metrics.Namespace))
	m.RegisterCodecPools()

	opts := []server.Option{
		server.WithLogger(slog.Default()),
		server.WithMetrics(m, prometheus.DefaultGatherer),
	}
	store, err := newStore(cfg.Capture)
	if err != nil {
		return err
	}
	if store != nil {
		opts = append(opts, server.WithStore(store))
	}
	srv := server.New(cfg, opts...)

	fmt.Fprint(out, banner)
	fmt.Fprintln(out, "  serve")
	fmt.Fprintln(out)
	info(out, "WebSocket: ws://%s%s", displayAddr(cfg.Server.Addr), cfg.Server.Path)
	if cfg.Metrics.Enabled {
		info(out, "Metrics:   http://%s%s", displayAddr(cfg.Server.Addr), cfg.Metrics.Path)
	}
	if store != nil {
		info(out, "Capture:   %s", store.Name())
	}
	fmt.Fprintln(out)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.ListenAndServe(ctx); err != nil {
		return errors.New("E143").Wrap(err)
	}
	success(out, "Server stopped")
	return nil
}

// displayAddr turns ":7350" into "localhost:7350".
func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}
