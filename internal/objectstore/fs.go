// Package objectstore is the filesystem abstraction the ingest engine
// writes through: mkdirs/rename/get, as specced as an "opaque" external
// collaborator in §1. LocalFS backs the common case (a POSIX mount, e.g.
// NFS-backed HDFS-alike storage); S3FS backs object-store deployments.
package objectstore

import (
	"context"
	"io"
)

// FileSystem is the narrow interface the file-finaliser (C2) depends on.
// Implementations must tolerate being called concurrently by independent
// workers on disjoint paths, and Mkdirs/Rename must either be idempotent
// or tolerate an "already exists" condition (§5 shared resources).
type FileSystem interface {
	// Mkdirs creates path and any missing parents. It must not error if
	// path already exists.
	Mkdirs(ctx context.Context, path string) error

	// Rename moves oldPath to newPath. The finaliser calls Mkdirs first
	// for a dated sub-directory; with a flat layout newPath's parent is
	// the target directory that already holds the temp file.
	Rename(ctx context.Context, oldPath, newPath string) error

	// Create opens path for writing, truncating any existing file.
	Create(ctx context.Context, path string) (io.WriteCloser, error)

	// Open opens path for reading.
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}
