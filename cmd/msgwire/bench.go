package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/vango-dev/msgwire/internal/config"
	"github.com/vango-dev/msgwire/internal/server"
	"github.com/vango-dev/msgwire/pkg/protocol"
	"github.com/vango-dev/msgwire/pkg/transport"
)

type benchConfig struct {
	Iterations int           `json:"iterations"`
	Depth      int           `json:"depth"`
	Fields     int           `json:"fields"`
	Clients    int           `json:"clients"`
	Duration   time.Duration `json:"duration"`
	JSONOutput string        `json:"-"`
}

type codecResult struct {
	Name        string  `json:"name"`
	Iterations  int     `json:"iterations"`
	NsPerOp     float64 `json:"ns_per_op"`
	AllocsPerOp float64 `json:"allocs_per_op"`
	BytesPerOp  float64 `json:"bytes_per_op"`
	MBPerSec    float64 `json:"mb_per_sec"`
}

type echoResult struct {
	Clients    int     `json:"clients"`
	RoundTrips int     `json:"round_trips"`
	Errors     int     `json:"errors"`
	PerSec     float64 `json:"per_sec"`
	P50Micros  float64 `json:"p50_us"`
	P99Micros  float64 `json:"p99_us"`
	MaxMicros  float64 `json:"max_us"`
}

type benchReport struct {
	Config       benchConfig   `json:"config"`
	MessageBytes int           `json:"message_bytes"`
	Codec        []codecResult `json:"codec"`
	Echo         *echoResult   `json:"echo,omitempty"`
	GoVersion    string        `json:"go_version"`
}

func benchCmd() *cobra.Command {
	var cfg benchConfig

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure codec and echo throughput",
		Long: `Measure encode and decode throughput for a synthetic message tree
and, with --clients, the round-trip latency of an in-process echo server.

Examples:
  msgwire bench
  msgwire bench --depth 8 --fields 16
  msgwire bench --clients 50 --duration 10s --json report.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBench(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().IntVar(&cfg.Iterations, "n", 100000, "Codec iterations")
	cmd.Flags().IntVar(&cfg.Depth, "depth", 4, "Nesting depth of the message")
	cmd.Flags().IntVar(&cfg.Fields, "fields", 4, "Scalar fields per message")
	cmd.Flags().IntVar(&cfg.Clients, "clients", 0, "Concurrent echo clients (0 skips the echo run)")
	cmd.Flags().DurationVar(&cfg.Duration, "duration", 5*time.Second, "Echo run duration")
	cmd.Flags().StringVar(&cfg.JSONOutput, "json", "", "Write a JSON report to this path ('-' for stdout)")

	return cmd
}

func runBench(ctx context.Context, w io.Writer, cfg benchConfig) error {
	if cfg.Iterations <= 0 || cfg.Depth < 1 || cfg.Fields < 0 {
		return fmt.Errorf("bench: --n and --depth must be positive, --fields must not be negative")
	}
	if cfg.Depth > protocol.MaxFrameDepth {
		return fmt.Errorf("bench: --depth must be at most %d", protocol.MaxFrameDepth)
	}

	msg, err := buildBenchMessage(cfg.Depth, cfg.Fields)
	if err != nil {
		return err
	}

	report := benchReport{
		Config:       cfg,
		MessageBytes: len(msg),
		GoVersion:    runtime.Version(),
	}

	report.Codec = append(report.Codec,
		measure("encode", cfg.Iterations, len(msg), func() {
			w := protocol.GetWriter(len(msg))
			writeBenchMessage(w, cfg.Depth, cfg.Fields)
			w.Recycle()
		}),
		measure("decode", cfg.Iterations, len(msg), func() {
			r, err := protocol.OpenReader(msg, 0)
			if err != nil {
				panic(err)
			}
			if err := readBenchMessage(r, cfg.Depth, cfg.Fields); err != nil {
				panic(err)
			}
			r.Recycle()
		}),
	)

	if cfg.Clients > 0 {
		echo, err := runEcho(ctx, cfg, msg)
		if err != nil {
			return err
		}
		report.Echo = echo
	}

	printReport(w, report)
	if cfg.JSONOutput != "" {
		return writeJSON(w, cfg.JSONOutput, report)
	}
	return nil
}

// buildBenchMessage returns a finalized message of the given shape.
func buildBenchMessage(depth, fields int) ([]byte, error) {
	w := protocol.NewWriter()
	defer w.Recycle()
	writeBenchMessage(w, depth, fields)
	return w.Finalize(true)
}

func writeBenchMessage(w *protocol.Writer, depth, fields int) {
	w.StartMessage(byte(depth))
	for i := 0; i < fields; i++ {
		switch i % 4 {
		case 0:
			w.WriteInt32(int32(i) * -1000)
		case 1:
			w.WritePackedUint32(uint32(i) << 10)
		case 2:
			w.WriteString("field")
		case 3:
			w.WriteFloat64(float64(i) / 3)
		}
	}
	if depth > 1 {
		writeBenchMessage(w, depth-1, fields)
	}
	_ = w.EndMessage()
}

// readBenchMessage decodes a message written by writeBenchMessage.
func readBenchMessage(r *protocol.Reader, depth, fields int) error {
	var err error
	for i := 0; i < fields && err == nil; i++ {
		switch i % 4 {
		case 0:
			_, err = r.ReadInt32()
		case 1:
			_, err = r.ReadPackedUint32()
		case 2:
			_, err = r.ReadString()
		case 3:
			_, err = r.ReadFloat64()
		}
	}
	if err != nil || depth <= 1 {
		return err
	}
	child, err := r.ReadMessage()
	if err != nil {
		return err
	}
	defer child.Recycle()
	return readBenchMessage(child, depth-1, fields)
}

// measure runs fn n times and reports time and heap allocations per call.
func measure(name string, n, size int, fn func()) codecResult {
	fn()

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	start := time.Now()
	for i := 0; i < n; i++ {
		fn()
	}
	elapsed := time.Since(start)
	runtime.ReadMemStats(&after)

	ns := float64(elapsed.Nanoseconds()) / float64(n)
	return codecResult{
		Name:        name,
		Iterations:  n,
		NsPerOp:     ns,
		AllocsPerOp: float64(after.Mallocs-before.Mallocs) / float64(n),
		BytesPerOp:  float64(after.TotalAlloc-before.TotalAlloc) / float64(n),
		MBPerSec:    float64(size) / ns * 1e9 / (1 << 20),
	}
}

// runEcho starts an in-process echo server and drives it with cfg.Clients
// connections for cfg.Duration.
func runEcho(ctx context.Context, cfg benchConfig, msg []byte) (*echoResult, error) {
	srvCfg := config.New()
	srvCfg.Metrics.Enabled = false
	srv := server.New(srvCfg, server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("bench: listen: %w", err)
	}
	httpServer := &http.Server{Handler: srv.Handler()}
	go func() {
		_ = httpServer.Serve(ln)
	}()
	defer func() {
		_ = httpServer.Shutdown(context.Background())
		_ = srv.Shutdown(context.Background())
	}()

	url := "ws://" + ln.Addr().String() + srvCfg.Server.Path

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	var (
		mu        sync.Mutex
		latencies []time.Duration
		failures  int
		wg        sync.WaitGroup
	)
	start := time.Now()
	for i := 0; i < cfg.Clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local, errs := runEchoClient(ctx, url, msg)
			mu.Lock()
			latencies = append(latencies, local...)
			failures += errs
			mu.Unlock()
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return &echoResult{
		Clients:    cfg.Clients,
		RoundTrips: len(latencies),
		Errors:     failures,
		PerSec:     float64(len(latencies)) / math.Max(0.001, elapsed.Seconds()),
		P50Micros:  micros(percentile(latencies, 0.50)),
		P99Micros:  micros(percentile(latencies, 0.99)),
		MaxMicros:  micros(percentile(latencies, 1)),
	}, nil
}

func runEchoClient(ctx context.Context, url string, msg []byte) ([]time.Duration, int) {
	conn, err := transport.Dial(ctx, url, transport.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		return nil, 1
	}
	defer conn.Close()

	var out []time.Duration
	for ctx.Err() == nil {
		start := time.Now()
		if err := conn.SendBytes(ctx, msg); err != nil {
			break
		}
		reply, err := conn.Receive(ctx)
		if err != nil {
			break
		}
		reply.Recycle()
		out = append(out, time.Since(start))
	}
	if ctx.Err() == nil {
		return out, 1
	}
	return out, 0
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	idx := int(math.Ceil(float64(len(sorted))*p)) - 1
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

func micros(d time.Duration) float64 {
	return float64(d.Nanoseconds()) / 1e3
}

func printReport(w io.Writer, r benchReport) {
	fmt.Fprintf(w, "message: depth=%d fields=%d size=%d bytes\n\n", r.Config.Depth, r.Config.Fields, r.MessageBytes)
	for _, c := range r.Codec {
		fmt.Fprintf(w, "  %-8s %10.1f ns/op %8.1f MB/s %6.1f allocs/op %8.1f B/op\n",
			c.Name, c.NsPerOp, c.MBPerSec, c.AllocsPerOp, c.BytesPerOp)
	}
	if e := r.Echo; e != nil {
		fmt.Fprintf(w, "\n  echo     %d clients, %d round trips (%.0f/s), %d errors\n",
			e.Clients, e.RoundTrips, e.PerSec, e.Errors)
		fmt.Fprintf(w, "           p50 %.0fµs  p99 %.0fµs  max %.0fµs\n", e.P50Micros, e.P99Micros, e.MaxMicros)
	}
}

func writeJSON(stdout io.Writer, path string, report benchReport) error {
	out := stdout
	if path != "-" {
		file, err := os.Create(path)
		if err != nil {
			return err
		}
		defer file.Close()
		out = file
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
