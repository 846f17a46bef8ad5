package server

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vango-dev/msgwire/internal/capture"
	"github.com/vango-dev/msgwire/internal/config"
	"github.com/vango-dev/msgwire/internal/metrics"
	"github.com/vango-dev/msgwire/pkg/protocol"
	"github.com/vango-dev/msgwire/pkg/transport"
)

func newTestServer(t *testing.T, opts ...Option) (*Server, *httptest.Server) {
	t.Helper()
	s := New(config.New(), opts...)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *transport.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := transport.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+config.DefaultPath)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func twoFrames(t *testing.T) []byte {
	t.Helper()
	w := protocol.NewWriter()
	defer w.Recycle()

	w.StartMessage(1)
	w.WriteString("hello")
	w.StartMessage(2)
	w.WritePackedUint32(300)
	require.NoError(t, w.EndMessage())
	require.NoError(t, w.EndMessage())

	w.StartMessage(9)
	w.WriteFloat64(2.5)
	require.NoError(t, w.EndMessage())

	data, err := w.Finalize(true)
	require.NoError(t, err)
	return data
}

func scrape(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	resp, err := http.Get(ts.URL + config.DefaultMetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestEcho(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sent := twoFrames(t)
	require.NoError(t, conn.SendBytes(ctx, sent))

	reply, err := conn.Receive(ctx)
	require.NoError(t, err)
	defer reply.Recycle()
	assert.Equal(t, sent, reply.Payload())

	body := scrape(t, ts)
	assert.Contains(t, body, `msgwire_frames_decoded_total{tag="1"} 1`)
	assert.Contains(t, body, `msgwire_frames_encoded_total{tag="9"} 1`)
	assert.Contains(t, body, `msgwire_active_connections 1`)
}

func TestMalformedDatagramIsQuarantined(t *testing.T) {
	store, err := capture.NewDirStore(t.TempDir())
	require.NoError(t, err)
	_, ts := newTestServer(t, WithStore(store))
	conn := dial(t, ts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Declares a 5-byte payload but carries one.
	bad := []byte{0x05, 0x00, 0x01, 0xAA}
	require.NoError(t, conn.SendBytes(ctx, bad))

	// The connection survives and the next datagram is echoed.
	good := twoFrames(t)
	require.NoError(t, conn.SendBytes(ctx, good))

	reply, err := conn.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, good, reply.Payload())
	reply.Recycle()

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasSuffix(entries[0].Name(), capture.Extension))

	data, err := capture.ReadFile(filepath.Join(store.Dir(), entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, bad, data)

	body := scrape(t, ts)
	assert.Contains(t, body, `msgwire_decode_errors_total{kind="truncated_field"} 1`)
	assert.Contains(t, body, `msgwire_quarantined_total{store="dir"} 1`)
}

func TestHealthz(t *testing.T) {
	s := New(config.New())
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpointDisabled(t *testing.T) {
	cfg := config.New()
	cfg.Metrics.Enabled = false
	s := New(cfg)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, config.DefaultMetricsPath, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(metrics.WithRegistry(reg))
	s := New(config.New(), WithMetrics(m, reg))
	assert.Same(t, m, s.Metrics())
}

func TestShutdownClosesConnections(t *testing.T) {
	s, ts := newTestServer(t)
	conn := dial(t, ts)

	// Make sure the handler is running before shutting down.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.SendBytes(ctx, twoFrames(t)))
	reply, err := conn.Receive(ctx)
	require.NoError(t, err)
	reply.Recycle()

	require.NoError(t, s.Shutdown(ctx))

	_, err = conn.Receive(ctx)
	assert.Error(t, err)
}

func TestConnectionAfterShutdownIsClosed(t *testing.T) {
	s, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	// The route is still reachable through httptest, but the handler must
	// not start serving once shutdown has begun.
	conn := dial(t, ts)
	_, err := conn.Receive(ctx)
	assert.Error(t, err)
	assert.NoError(t, ctx.Err(), "connection was closed by the server, not by the timeout")

	require.NoError(t, s.Shutdown(ctx))
}

func TestEchoFunc(t *testing.T) {
	data := twoFrames(t)
	dgram, err := protocol.OpenReaderLength(data, 0, len(data))
	require.NoError(t, err)
	defer dgram.Recycle()

	w := protocol.NewWriter()
	defer w.Recycle()

	n, err := Echo(dgram, w, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, data, w.Bytes())
}

func TestEchoStopsAtBadFrame(t *testing.T) {
	data := append(twoFrames(t), 0x01, 0x00)
	dgram, err := protocol.OpenReaderLength(data, 0, len(data))
	require.NoError(t, err)
	defer dgram.Recycle()

	w := protocol.NewWriter()
	defer w.Recycle()

	n, err := Echo(dgram, w, nil)
	assert.ErrorIs(t, err, protocol.ErrTruncatedHeader)
	assert.Equal(t, 2, n)
	assert.Equal(t, len(data)-2, dgram.Position())
}
