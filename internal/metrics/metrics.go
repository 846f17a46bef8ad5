// Package metrics exports codec, transport and pool counters to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vango-dev/msgwire/pkg/pool"
	"github.com/vango-dev/msgwire/pkg/protocol"
)

// Config configures the collectors.
type Config struct {
	// Namespace is the metrics namespace (default: "msgwire").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for datagram handling duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// Option configures the collectors.
type Option func(*Config)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) Option {
	return func(c *Config) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) Option {
	return func(c *Config) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(c *Config) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) Option {
	return func(c *Config) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(c *Config) {
		c.Registry = registry
	}
}

func defaultConfig() Config {
	return Config{
		Namespace: "msgwire",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors.
type Metrics struct {
	config Config

	framesDecoded  *prometheus.CounterVec
	framesEncoded  *prometheus.CounterVec
	decodeErrors   *prometheus.CounterVec
	bytesReceived  prometheus.Counter
	bytesSent      prometheus.Counter
	quarantined    *prometheus.CounterVec
	activeConns    prometheus.Gauge
	handleDuration prometheus.Histogram
}

// New creates and registers the collectors.
func New(opts ...Option) *Metrics {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		config: config,

		framesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_decoded_total",
			Help:        "Total number of top-level frames decoded, by tag",
			ConstLabels: config.ConstLabels,
		}, []string{"tag"}),

		framesEncoded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "frames_encoded_total",
			Help:        "Total number of top-level frames encoded, by tag",
			ConstLabels: config.ConstLabels,
		}, []string{"tag"}),

		decodeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "decode_errors_total",
			Help:        "Total number of datagrams rejected by the decoder, by error kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		bytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_received_total",
			Help:        "Total datagram bytes received",
			ConstLabels: config.ConstLabels,
		}),

		bytesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "bytes_sent_total",
			Help:        "Total datagram bytes sent",
			ConstLabels: config.ConstLabels,
		}),

		quarantined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "quarantined_total",
			Help:        "Total malformed datagrams written to the quarantine store",
			ConstLabels: config.ConstLabels,
		}, []string{"store"}),

		activeConns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_connections",
			Help:        "Number of open websocket connections",
			ConstLabels: config.ConstLabels,
		}),

		handleDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "datagram_duration_seconds",
			Help:        "Time spent decoding and answering one datagram",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

func tagLabel(tag byte) string {
	return strconv.Itoa(int(tag))
}

// FrameDecoded counts one decoded top-level frame.
func (m *Metrics) FrameDecoded(tag byte) {
	m.framesDecoded.WithLabelValues(tagLabel(tag)).Inc()
}

// FrameEncoded counts one encoded top-level frame.
func (m *Metrics) FrameEncoded(tag byte) {
	m.framesEncoded.WithLabelValues(tagLabel(tag)).Inc()
}

// DecodeError counts a rejected datagram under its protocol error kind.
func (m *Metrics) DecodeError(err error) {
	m.decodeErrors.WithLabelValues(protocol.ErrorKind(err)).Inc()
}

// DatagramReceived adds n received bytes.
func (m *Metrics) DatagramReceived(n int) {
	m.bytesReceived.Add(float64(n))
}

// DatagramSent adds n sent bytes.
func (m *Metrics) DatagramSent(n int) {
	m.bytesSent.Add(float64(n))
}

// Quarantined counts a datagram kept by the named store.
func (m *Metrics) Quarantined(store string) {
	m.quarantined.WithLabelValues(store).Inc()
}

// ConnOpened increments the active connection gauge.
func (m *Metrics) ConnOpened() { m.activeConns.Inc() }

// ConnClosed decrements the active connection gauge.
func (m *Metrics) ConnClosed() { m.activeConns.Dec() }

// ObserveDatagram records how long one datagram took, in seconds.
func (m *Metrics) ObserveDatagram(seconds float64) {
	m.handleDuration.Observe(seconds)
}

// StatsFunc returns a snapshot of pool counters.
type StatsFunc func() pool.Stats

// RegisterPool exports the counters of a pool under the given name. The
// values are read at scrape time.
func (m *Metrics) RegisterPool(name string, stats StatsFunc) {
	factory := promauto.With(m.config.Registry)
	labels := prometheus.Labels{"pool": name}
	for k, v := range m.config.ConstLabels {
		labels[k] = v
	}

	opts := func(metric, help string) prometheus.Opts {
		return prometheus.Opts{
			Namespace:   m.config.Namespace,
			Subsystem:   m.config.Subsystem,
			Name:        metric,
			Help:        help,
			ConstLabels: labels,
		}
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts(opts("pool_in_use", "Objects checked out of the pool")),
		func() float64 { return float64(stats().InUse()) })
	factory.NewGaugeFunc(prometheus.GaugeOpts(opts("pool_idle", "Objects on the pool free list")),
		func() float64 { return float64(stats().Idle) })
	factory.NewCounterFunc(prometheus.CounterOpts(opts("pool_gets_total", "Total objects handed out by the pool")),
		func() float64 { return float64(stats().Gets) })
	factory.NewCounterFunc(prometheus.CounterOpts(opts("pool_news_total", "Total objects allocated by the pool")),
		func() float64 { return float64(stats().News) })
	factory.NewCounterFunc(prometheus.CounterOpts(opts("pool_drops_total", "Total objects discarded because the pool was full")),
		func() float64 { return float64(stats().Drops) })
}

// RegisterCodecPools exports the protocol reader and writer pools.
func (m *Metrics) RegisterCodecPools() {
	m.RegisterPool("reader", protocol.ReaderPoolStats)
	m.RegisterPool("writer", protocol.WriterPoolStats)
}
