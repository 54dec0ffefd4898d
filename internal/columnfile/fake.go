package columnfile

import (
	"errors"
	"sync"
	"time"

	"google.golang.org/protobuf/proto"
)

// ErrAlreadyClosed is returned by Write or Close on a FakeWriter that has
// already been closed, modelling the real writer's "nulls out state after
// close" behaviour (§4.2 step 1's rationale for snapshotting before
// close).
var ErrAlreadyClosed = errors.New("columnfile: writer already closed")

// FakeWriter is an in-memory Writer for ingest-engine tests: it counts
// records and sums on-wire proto.Size rather than performing real
// row-group encoding, so tests can assert rollover and finalise behaviour
// without touching a real Parquet file.
type FakeWriter struct {
	mu          sync.Mutex
	records     []proto.Message
	recordCount int64
	dataSize    int64
	createdAt   time.Time
	closed      bool

	// FailNextWrites, when > 0, makes that many subsequent Write calls
	// return a transient error before succeeding — used to exercise the
	// worker's retry path around column-file writes.
	FailNextWrites int
}

// NewFakeWriter returns an open FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{createdAt: time.Now()}
}

func (w *FakeWriter) Write(rec proto.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	if w.FailNextWrites > 0 {
		w.FailNextWrites--
		return errors.New("columnfile: injected transient write failure")
	}
	w.records = append(w.records, rec)
	w.recordCount++
	w.dataSize += int64(proto.Size(rec))
	return nil
}

func (w *FakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrAlreadyClosed
	}
	w.closed = true
	return nil
}

func (w *FakeWriter) DataSize() int64    { w.mu.Lock(); defer w.mu.Unlock(); return w.dataSize }
func (w *FakeWriter) RecordCount() int64 { w.mu.Lock(); defer w.mu.Unlock(); return w.recordCount }
func (w *FakeWriter) CreationTime() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.createdAt
}

// Records returns a snapshot of everything written, for test assertions
// (property R1).
func (w *FakeWriter) Records() []proto.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]proto.Message, len(w.records))
	copy(out, w.records)
	return out
}

// Closed reports whether Close has been called, for property P2/P3
// assertions.
func (w *FakeWriter) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}
