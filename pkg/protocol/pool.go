package protocol

import "github.com/vango-dev/msgwire/pkg/pool"

// Idle caps for the package pools. See SetPoolLimits.
const (
	DefaultMaxIdleReaders = 1024
	DefaultMaxIdleWriters = 256

	// maxRetainedWriterCap drops buffers that grew past this size instead of
	// keeping them alive in the pool.
	maxRetainedWriterCap = 4 * (HeaderSize + MaxPayloadSize)
)

var (
	readers = pool.New(
		func() *Reader { return &Reader{} },
		pool.WithMaxIdle[*Reader](DefaultMaxIdleReaders),
		pool.WithReset(func(r *Reader) {
			r.buf = nil
			r.offset, r.length, r.pos, r.tag = 0, 0, 0, 0
		}),
	)

	writers = pool.New(
		func() *Writer { return &Writer{} },
		pool.WithMaxIdle[*Writer](DefaultMaxIdleWriters),
		pool.WithReset(func(w *Writer) {
			if cap(w.buf) > maxRetainedWriterCap {
				w.buf = nil
			}
			w.Reset()
		}),
	)
)

// SetPoolLimits changes how many idle readers and writers are retained.
// A value <= 0 means unbounded.
func SetPoolLimits(maxIdleReaders, maxIdleWriters int) {
	readers.SetMaxIdle(maxIdleReaders)
	writers.SetMaxIdle(maxIdleWriters)
}

// ReaderPoolStats returns the reader pool counters.
func ReaderPoolStats() pool.Stats { return readers.Stats() }

// WriterPoolStats returns the writer pool counters.
func WriterPoolStats() pool.Stats { return writers.Stats() }
