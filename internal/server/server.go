// Package server implements the msgwire echo server.
//
// The server accepts websocket connections on a single endpoint. Every
// datagram is decoded frame by frame and echoed back as one reply datagram.
// Datagrams that fail to decode are logged, counted and, when a capture
// store is configured, quarantined for offline inspection.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vango-dev/msgwire/internal/capture"
	"github.com/vango-dev/msgwire/internal/config"
	"github.com/vango-dev/msgwire/internal/metrics"
	"github.com/vango-dev/msgwire/pkg/protocol"
	"github.com/vango-dev/msgwire/pkg/transport"
)

// DefaultShutdownTimeout bounds Shutdown when ctx has no deadline.
const DefaultShutdownTimeout = 10 * time.Second

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the collectors and the gatherer served on the metrics
// endpoint.
func WithMetrics(m *metrics.Metrics, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = gatherer
	}
}

// WithStore sets the quarantine store.
func WithStore(store capture.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithCheckOrigin sets the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(s *Server) {
		s.checkOrigin = fn
	}
}

// Server is the echo server.
type Server struct {
	config      *config.Config
	logger      *slog.Logger
	metrics     *metrics.Metrics
	gatherer    prometheus.Gatherer
	store       capture.Store
	checkOrigin func(r *http.Request) bool
	router      chi.Router

	mu         sync.Mutex
	httpServer *http.Server
	conns      map[*transport.Conn]struct{}
	closing    bool
	wg         sync.WaitGroup
}

// New creates a server for cfg. Without WithMetrics, collectors are
// registered on a private registry.
func New(cfg *config.Config, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Server{
		config: cfg,
		conns:  make(map[*transport.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.metrics == nil {
		reg := prometheus.NewRegistry()
		s.metrics = metrics.New(
			metrics.WithNamespace(cfg.Metrics.Namespace),
			metrics.WithRegistry(reg),
		)
		s.gatherer = reg
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if s.config.Metrics.Enabled {
		r.Method(http.MethodGet, s.config.Metrics.Path,
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	r.Get(s.config.Server.Path, s.handleWebSocket)
	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server collectors.
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// ListenAndServe serves on the configured address until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", srv.Addr, "path", s.config.Server.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting connections, closes the open ones and waits for
// their handlers to return.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultShutdownTimeout)
		defer cancel()
	}

	s.mu.Lock()
	s.closing = true
	srv := s.httpServer
	conns := make([]*transport.Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	var err error
	if srv != nil {
		// Hijacked websocket connections are not tracked by http.Server.
		if err = srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
		}
	}
	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	s.logger.Info("server shutdown complete")
	return err
}

// track registers c with the wait group. It reports false once Shutdown has
// started, in which case c is not tracked.
func (s *Server) track(c *transport.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.wg.Add(1)
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c *transport.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := transport.Upgrade(w, r,
		transport.WithLogger(s.logger.With("request_id", middleware.GetReqID(r.Context()))),
		transport.WithTracerName(s.config.Tracing.TracerName),
		transport.WithObserver(s.metrics),
		transport.WithReadLimit(s.config.Server.ReadLimit),
		transport.WithWriteTimeout(s.config.WriteTimeout()),
		transport.WithReadTimeout(s.config.ReadTimeout()),
		transport.WithCheckOrigin(s.checkOrigin),
	)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	if !s.track(conn) {
		s.logger.Debug("rejecting connection during shutdown", "conn_id", conn.ID())
		conn.Close()
		return
	}
	defer s.untrack(conn)

	s.metrics.ConnOpened()
	defer s.metrics.ConnClosed()
	defer conn.Close()

	s.serveConn(r.Context(), conn)
}

// serveConn runs the receive loop of one connection.
func (s *Server) serveConn(ctx context.Context, conn *transport.Conn) {
	log := conn.Logger()
	log.Info("connection opened")

	for {
		dgram, err := conn.Receive(ctx)
		if err != nil {
			if transport.IsClosed(err) {
				log.Info("connection closed")
			} else {
				log.Warn("receive failed", "error", err)
			}
			return
		}

		start := time.Now()
		err = s.handleDatagram(ctx, conn, dgram)
		dgram.Recycle()
		s.metrics.ObserveDatagram(time.Since(start).Seconds())
		if err != nil {
			log.Warn("send failed", "error", err)
			return
		}
	}
}

// handleDatagram echoes one datagram. Decode failures are reported and
// quarantined; only send failures are returned.
func (s *Server) handleDatagram(ctx context.Context, conn *transport.Conn, dgram *protocol.Reader) error {
	w := protocol.GetWriter(dgram.Len())
	defer w.Recycle()

	n, err := Echo(dgram, w, s.metrics)
	if err != nil {
		s.reject(ctx, conn, dgram, err)
		return nil
	}
	if n == 0 {
		return nil
	}
	return conn.Send(ctx, w)
}

func (s *Server) reject(ctx context.Context, conn *transport.Conn, dgram *protocol.Reader, err error) {
	log := conn.Logger()
	s.metrics.DecodeError(err)
	log.Warn("malformed datagram",
		"error", err,
		"kind", protocol.ErrorKind(err),
		"bytes", dgram.Len(),
		"offset", dgram.Position())

	if s.store == nil {
		return
	}
	key := capture.Key(conn.ID(), time.Now())
	if perr := s.store.Put(ctx, key, dgram.Payload()); perr != nil {
		log.Error("quarantine failed", "store", s.store.Name(), "error", perr)
		return
	}
	s.metrics.Quarantined(s.store.Name())
	log.Info("datagram quarantined", "store", s.store.Name(), "key", key)
}

// Echo copies every top-level frame of dgram into w and returns the number
// of frames copied. On error w holds the frames copied before the failure
// and dgram's read head sits at the failing frame.
func Echo(dgram *protocol.Reader, w *protocol.Writer, m *metrics.Metrics) (int, error) {
	n := 0
	for dgram.Remaining() > 0 {
		msg, err := dgram.ReadMessage()
		if err != nil {
			return n, err
		}
		tag := msg.Tag()
		if m != nil {
			m.FrameDecoded(tag)
		}

		w.StartMessage(tag)
		w.WriteBytes(msg.Payload())
		msg.Recycle()
		if err := w.EndMessage(); err != nil {
			return n, err
		}
		if m != nil {
			m.FrameEncoded(tag)
		}
		n++
	}
	return n, nil
}
