// Package transport carries msgwire datagrams over websocket connections.
//
// Each binary websocket message is one datagram. A datagram holds one or
// more complete top-level frames; its extent comes from the websocket
// framing, so Receive opens it with an explicit length and tag 0.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/msgwire/pkg/protocol"
)

// Default tracer name for msgwire connections.
const defaultTracerName = "msgwire"

// ErrUnexpectedMessageType is returned by Receive for non-binary messages.
var ErrUnexpectedMessageType = errors.New("transport: unexpected websocket message type")

// Observer receives byte counts for every datagram. It must be safe for
// concurrent use.
type Observer interface {
	DatagramReceived(n int)
	DatagramSent(n int)
}

// Options configures a Conn.
type Options struct {
	// Logger receives connection lifecycle logs (default: slog.Default()).
	Logger *slog.Logger

	// TracerName names the OpenTelemetry tracer (default: "msgwire").
	TracerName string

	// Observer, if set, is told about every datagram.
	Observer Observer

	// ReadLimit is the largest datagram accepted (default: one maximal frame).
	ReadLimit int64

	// WriteTimeout bounds a Send when ctx has no deadline (default: 5s).
	WriteTimeout time.Duration

	// ReadTimeout bounds a Receive when ctx has no deadline. Zero waits
	// indefinitely.
	ReadTimeout time.Duration

	// CheckOrigin is passed to the websocket upgrader. Nil uses the
	// upgrader's same-origin check.
	CheckOrigin func(r *http.Request) bool
}

// Option configures a Conn.
type Option func(*Options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTracerName sets the tracer name.
func WithTracerName(name string) Option {
	return func(o *Options) {
		o.TracerName = name
	}
}

// WithObserver sets the datagram observer.
func WithObserver(obs Observer) Option {
	return func(o *Options) {
		o.Observer = obs
	}
}

// WithReadLimit sets the maximum datagram size.
func WithReadLimit(n int64) Option {
	return func(o *Options) {
		o.ReadLimit = n
	}
}

// WithWriteTimeout sets the default write timeout.
func WithWriteTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.WriteTimeout = d
	}
}

// WithReadTimeout sets the default read timeout.
func WithReadTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.ReadTimeout = d
	}
}

// WithCheckOrigin sets the origin check used by Upgrade.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(o *Options) {
		o.CheckOrigin = fn
	}
}

func buildOptions(opts []Option) Options {
	o := Options{
		TracerName:   defaultTracerName,
		ReadLimit:    protocol.HeaderSize + protocol.MaxPayloadSize,
		WriteTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Conn is a websocket connection carrying msgwire datagrams.
//
// Send may be called from multiple goroutines. Receive must only be called
// from one goroutine at a time.
type Conn struct {
	ws     *websocket.Conn
	id     string
	opts   Options
	tracer trace.Tracer
	logger *slog.Logger

	writeMu sync.Mutex
}

func newConn(ws *websocket.Conn, opts Options) *Conn {
	id := uuid.NewString()
	ws.SetReadLimit(opts.ReadLimit)
	return &Conn{
		ws:     ws,
		id:     id,
		opts:   opts,
		tracer: otel.Tracer(opts.TracerName),
		logger: opts.Logger.With("component", "transport", "conn_id", id),
	}
}

// Dial opens a client connection to a msgwire websocket endpoint.
func Dial(ctx context.Context, url string, opts ...Option) (*Conn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("transport: dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	c := newConn(ws, buildOptions(opts))
	c.logger.Debug("connection dialed", "url", url)
	return c, nil
}

// Upgrade upgrades an HTTP request to a msgwire connection. On failure the
// upgrader has already written an HTTP error response.
func Upgrade(w http.ResponseWriter, r *http.Request, opts ...Option) (*Conn, error) {
	o := buildOptions(opts)
	upgrader := websocket.Upgrader{
		CheckOrigin: o.CheckOrigin,
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	c := newConn(ws, o)
	c.logger.Debug("connection accepted", "remote", r.RemoteAddr)
	return c, nil
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() string { return c.id }

// Logger returns the connection-scoped logger.
func (c *Conn) Logger() *slog.Logger { return c.logger }

// Send finalizes w, header included, and sends it as one datagram.
// w is not recycled.
func (c *Conn) Send(ctx context.Context, w *protocol.Writer) error {
	data, err := w.Finalize(true)
	if err != nil {
		return fmt.Errorf("transport: send: %w", err)
	}
	return c.SendBytes(ctx, data)
}

// SendBytes sends data as one datagram.
func (c *Conn) SendBytes(ctx context.Context, data []byte) error {
	ctx, span := c.tracer.Start(ctx, "msgwire.send",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("msgwire.conn_id", c.id),
			attribute.Int("msgwire.bytes", len(data)),
		),
	)
	defer span.End()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.opts.WriteTimeout)
	}

	c.writeMu.Lock()
	c.ws.SetWriteDeadline(deadline)
	err := c.ws.WriteMessage(websocket.BinaryMessage, data)
	c.writeMu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("transport: send: %w", err)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.DatagramSent(len(data))
	}
	return nil
}

// Receive waits for the next datagram and returns a reader over it with
// tag 0 and the datagram's length. The reader owns the datagram bytes; the
// caller must Recycle it. Cancelling ctx interrupts the wait, after which
// the connection cannot be read again.
func (c *Conn) Receive(ctx context.Context) (*protocol.Reader, error) {
	ctx, span := c.tracer.Start(ctx, "msgwire.receive",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("msgwire.conn_id", c.id)),
	)
	defer span.End()

	fail := func(err error) (*protocol.Reader, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok && c.opts.ReadTimeout > 0 {
		deadline = time.Now().Add(c.opts.ReadTimeout)
	}
	c.ws.SetReadDeadline(deadline)

	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	mt, data, err := c.ws.ReadMessage()
	stop()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(fmt.Errorf("transport: receive: %w", ctxErr))
		}
		return fail(fmt.Errorf("transport: receive: %w", err))
	}
	if mt != websocket.BinaryMessage {
		return fail(fmt.Errorf("%w: %d", ErrUnexpectedMessageType, mt))
	}

	span.SetAttributes(attribute.Int("msgwire.bytes", len(data)))
	if c.opts.Observer != nil {
		c.opts.Observer.DatagramReceived(len(data))
	}

	r, err := protocol.OpenReaderLength(data, 0, len(data))
	if err != nil {
		return fail(err)
	}
	return r, nil
}

// Close sends a normal close message and closes the connection.
func (c *Conn) Close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	c.writeMu.Unlock()
	c.logger.Debug("connection closed")
	return c.ws.Close()
}

// IsClosed reports whether err means the peer closed the connection
// normally or the connection was already closed locally.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway
	}
	return errors.Is(err, net.ErrClosed)
}
