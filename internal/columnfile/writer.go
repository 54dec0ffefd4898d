// Package columnfile wraps the compressed, row-group–oriented on-disk
// writer the ingest engine treats as an opaque collaborator (§1): write,
// close, dataSize, recordCount, creationTime.
package columnfile

import (
	"time"

	"google.golang.org/protobuf/proto"
)

// Writer is the interface the file-finaliser (C2) and worker (C3) depend
// on. A Writer is single-writer, single-use: once Close returns, the
// Writer must not be written to again (§3 invariant 3 — at most one open
// column file per worker — relies on the caller never holding two live
// Writers at once, not on the Writer itself being reusable).
type Writer interface {
	// Write encodes one record into the current row group.
	Write(rec proto.Message) error
	// Close flushes and finalises the on-disk file. After Close returns,
	// DataSize and RecordCount are no longer valid to call (mirroring the
	// source design's "writer nulls these after close").
	Close() error
	// DataSize reports the summed protobuf-encoded size (proto.Size) of
	// the records written so far, not the size of the encoded column file.
	DataSize() int64
	// RecordCount reports the number of records written so far.
	RecordCount() int64
	// CreationTime reports when the Writer was opened, used to evaluate
	// max-file-open-duration-ms rollover.
	CreationTime() time.Time
}

// Properties mirrors the column-file-properties of §3: block size > 0,
// page size > 0, dictionary on/off, and a compression codec.
type Properties struct {
	BlockSizeBytes  int64
	PageSizeBytes   int64
	DictionaryOn    bool
	CompressionCodec CompressionCodec
}

// CompressionCodec names the compression algorithm applied to each page.
type CompressionCodec int

const (
	CompressionUncompressed CompressionCodec = iota
	CompressionSnappy
	CompressionGzip
)

// DefaultProperties matches the builder defaults in §4.5: uncompressed,
// dictionary on.
func DefaultProperties() Properties {
	return Properties{
		BlockSizeBytes:   128 * 1024 * 1024,
		PageSizeBytes:    8 * 1024,
		DictionaryOn:     true,
		CompressionCodec: CompressionUncompressed,
	}
}

// RowConverter adapts a parsed protobuf record into the Go struct the
// underlying Parquet writer's schema was derived from. It is supplied
// alongside the record.Parser: the parser turns bytes into a typed
// message, the converter turns that message into a row.
type RowConverter func(proto.Message) (any, error)

// Factory opens a new Writer rooted at path. The worker (C3) calls this
// every time it needs a fresh column file: first open and after every
// rollover, always against the same reused temp-path (§3, §9 "reused temp
// path across rollovers").
type Factory func(path string) (Writer, error)
