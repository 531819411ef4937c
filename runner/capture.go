// capture.go implements bounded output capture for subprocess streams.
// A misbehaving script can emit unbounded output; the writer caps the
// bytes it retains and records that truncation occurred, so worst-case
// memory per stream is fixed regardless of the child's behavior.
package runner

import "bytes"

// capWriter is an io.Writer that retains at most max bytes. Writes
// beyond the cap are counted but discarded. Not safe for concurrent
// use; each stream gets its own instance.
type capWriter struct {
	max       int64 // 0 means unlimited
	written   int64
	truncated bool
	buf       bytes.Buffer
}

func newCapWriter(max int64) *capWriter {
	return &capWriter{max: max}
}

// Write never returns an error: the subprocess must keep draining its
// pipe even after the cap is reached, otherwise it would block on a
// full pipe instead of running to completion.
func (w *capWriter) Write(p []byte) (int, error) {
	if w.max <= 0 {
		w.buf.Write(p)
		w.written += int64(len(p))
		return len(p), nil
	}

	remaining := w.max - w.written
	switch {
	case remaining >= int64(len(p)):
		w.buf.Write(p)
	case remaining > 0:
		w.buf.Write(p[:remaining])
		w.truncated = true
	default:
		if len(p) > 0 {
			w.truncated = true
		}
	}
	w.written += int64(len(p))
	return len(p), nil
}

// String returns the retained bytes.
func (w *capWriter) String() string {
	return w.buf.String()
}

// Truncated reports whether any bytes were discarded.
func (w *capWriter) Truncated() bool {
	return w.truncated
}
