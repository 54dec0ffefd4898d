// Package ingest is the core ingest engine (§2 C2–C4): a pool of
// independent workers, each driving one log-consumer session through a
// poll → parse → write → rollover → commit loop, plus the file-finaliser
// and writer supervisor that own it.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kafkaparquet/writer/internal/columnfile"
	"github.com/kafkaparquet/writer/internal/config"
	"github.com/kafkaparquet/writer/internal/logclient"
	"github.com/kafkaparquet/writer/internal/metrics"
	"github.com/kafkaparquet/writer/internal/objectstore"
	"github.com/kafkaparquet/writer/internal/record"
	"github.com/kafkaparquet/writer/internal/retry"
)

var log = slog.Default()

// initTimeout bounds the one-shot poll(0) that forces group join at
// startup (§4.3 "Initialisation").
const initTimeout = 60 * time.Second

// worker is the per-worker runtime state of §3 "Per-worker runtime
// state": index, consumer, current-file, temp-path, written-offsets,
// running, close-lock.
type worker struct {
	index   int
	cfg     config.Config
	consumer logclient.Consumer
	fs      objectstore.FileSystem
	newWriter columnfile.Factory
	sink    metrics.Sink
	log     *slog.Logger

	tempPath string

	// closeLock mediates writer.Close (held by finalise) against the
	// supervisor's context cancel (held by Supervisor.Close), mirroring
	// §4.3's "Shutdown handshake" rationale. closeConsumer also holds it
	// around the consumer's Close.
	closeLock sync.Mutex

	currentFile       columnfile.Writer
	currentFileOpened time.Time

	writtenOffsets map[logclient.Partition]int64

	running atomic.Bool

	doneCh chan struct{}
}

func newWorker(index int, cfg config.Config, consumer logclient.Consumer, fs objectstore.FileSystem, newWriter columnfile.Factory, sink metrics.Sink) *worker {
	w := &worker{
		index:          index,
		cfg:            cfg,
		consumer:       consumer,
		fs:             fs,
		newWriter:      newWriter,
		sink:           sink,
		log:            log.With("instance", cfg.InstanceName, "worker", index),
		tempPath:       path.Join(cfg.TargetDirectory, tempFileName(cfg.InstanceName, index)),
		writtenOffsets: make(map[logclient.Partition]int64),
		doneCh:         make(chan struct{}),
	}
	w.running.Store(true)
	return w
}

// rebalanceListener adapts the worker's assignment-pruning rule (§4.3
// "on assign: prunes written-offsets") into a logclient.RebalanceListener.
type rebalanceListener struct{ w *worker }

func (l rebalanceListener) OnRevoke(revoked []logclient.Partition) {
	l.w.log.Info("partitions revoked", "partitions", revoked)
}

func (l rebalanceListener) OnAssign(assigned []logclient.Partition) {
	current := make(map[logclient.Partition]struct{}, len(assigned))
	for _, p := range assigned {
		current[p] = struct{}{}
	}
	for p := range l.w.writtenOffsets {
		if _, ok := current[p]; !ok {
			delete(l.w.writtenOffsets, p)
		}
	}
	l.w.log.Info("partitions assigned", "partitions", assigned)
}

// init subscribes to the topic and forces an initial poll(0) under a
// bounded timeout to verify group connectivity (§4.3 "Initialisation").
func (w *worker) init(ctx context.Context) error {
	if err := w.consumer.Subscribe(ctx, w.cfg.Topic, rebalanceListener{w}); err != nil {
		return fmt.Errorf("ingest: worker %d subscribe: %w", w.index, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if _, err := w.consumer.Poll(initCtx, 0); err != nil && !errors.Is(err, logclient.ErrWakeup) {
		return fmt.Errorf("ingest: worker %d initial poll: %w", w.index, err)
	}
	return nil
}

// run is the main ingest loop (§4.3 "Main loop"). It returns nil on a
// clean shutdown and a non-nil error for a fatal failure, which the
// supervisor logs and does not restart (§7 propagation policy). A
// cancellation observed after running was flipped to false counts as a
// clean shutdown (§4.3.2).
func (w *worker) run(ctx context.Context) (err error) {
	defer func() {
		if err != nil && !w.running.Load() && (errors.Is(err, retry.ErrCancelled) || errors.Is(err, context.Canceled)) {
			err = nil
		}
	}()
	for w.running.Load() {
		if w.currentFile != nil && w.cfg.MaxFileOpenDuration > 0 {
			if time.Since(w.currentFileOpened) >= w.cfg.MaxFileOpenDuration {
				if err := w.finalise(ctx); err != nil {
					return err
				}
			}
		}

		records, err := w.consumer.Poll(ctx, w.cfg.PollTimeout)
		if err != nil {
			if errors.Is(err, logclient.ErrWakeup) {
				if !w.running.Load() {
					return nil
				}
				return fmt.Errorf("ingest: worker %d woken while running", w.index)
			}
			if errors.Is(err, retry.ErrCancelled) || errors.Is(err, context.Canceled) {
				if !w.running.Load() {
					return nil
				}
			}
			return fmt.Errorf("ingest: worker %d poll: %w", w.index, err)
		}

		if len(records) == 0 {
			continue
		}

		if w.currentFile == nil {
			if err := w.openWriter(ctx); err != nil {
				return err
			}
		}

		for _, rec := range records {
			if err := w.ingestOne(ctx, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// ingestOne parses, writes, and bookkeeps a single record, then rolls
// over if the current file is now full (§4.3 "Main loop" step 5).
func (w *worker) ingestOne(ctx context.Context, rec logclient.Record) error {
	parsed, err := w.cfg.Record.Parse(rec.Value)
	if err != nil {
		if w.cfg.RecordErrorPolicy == record.SkipAndCount {
			w.sink.AddParseErrors(w.cfg.InstanceName, 1)
			w.log.Warn("dropping malformed record", "partition", rec.Partition, "offset", rec.Offset, "err", err)
			return nil
		}
		return fmt.Errorf("ingest: worker %d malformed record at partition %d offset %d: %w", w.index, rec.Partition, rec.Offset, err)
	}

	if _, err := retry.Do(ctx, nil, func() (struct{}, error) {
		return struct{}{}, w.currentFile.Write(parsed)
	}); err != nil {
		return fmt.Errorf("ingest: worker %d writing record: %w", w.index, err)
	}

	w.writtenOffsets[rec.Partition] = rec.Offset
	w.sink.AddWrittenRecords(w.cfg.InstanceName, 1)
	w.sink.AddWrittenBytes(w.cfg.InstanceName, float64(len(rec.Value)))

	if w.isFull() {
		if err := w.finalise(ctx); err != nil {
			return err
		}
		if err := w.openWriter(ctx); err != nil {
			return err
		}
	}
	return nil
}

// isFull reports whether the current file has met a record-count or
// byte-size rollover threshold (§4.3 step 5e).
func (w *worker) isFull() bool {
	if w.currentFile == nil {
		return false
	}
	if w.cfg.MaxRecordsPerFile > 0 && w.currentFile.RecordCount() >= w.cfg.MaxRecordsPerFile {
		return true
	}
	if w.cfg.MaxFileBytes > 0 && w.currentFile.DataSize() >= w.cfg.MaxFileBytes {
		return true
	}
	return false
}

// openWriter opens a fresh column-file writer on the worker's single
// reused temp path (§3 invariant 3 and 4), under retry.
func (w *worker) openWriter(ctx context.Context) error {
	writer, err := retry.Do(ctx, nil, func() (columnfile.Writer, error) {
		return w.newWriter(w.tempPath)
	})
	if err != nil {
		return fmt.Errorf("ingest: worker %d opening column file: %w", w.index, err)
	}
	w.currentFile = writer
	w.currentFileOpened = time.Now()
	return nil
}

// finalise implements §4.2's strict seven-step ordering: snapshot, close
// under close-lock, metrics, null the slot, resolve+mkdirs the
// destination, rename under retry, and finally commit offsets.
func (w *worker) finalise(ctx context.Context) error {
	if w.currentFile == nil {
		return nil
	}

	// 1. Snapshot dataSize/recordCount before close.
	dataSize := w.currentFile.DataSize()
	recordCount := w.currentFile.RecordCount()

	// 2. Close under close-lock.
	w.closeLock.Lock()
	closeErr := w.currentFile.Close()
	w.closeLock.Unlock()
	if closeErr != nil {
		return fmt.Errorf("ingest: worker %d closing column file: %w", w.index, closeErr)
	}

	// 3. Update flushed metrics by the snapshotted values.
	w.sink.AddFlushedRecords(w.cfg.InstanceName, float64(recordCount))
	w.sink.AddFlushedBytes(w.cfg.InstanceName, float64(dataSize))

	// 4. Null the current-file slot.
	w.currentFile = nil

	// 5. Resolve destination directory; mkdirs if required.
	now := time.Now()
	destDir := destinationDir(w.cfg.TargetDirectory, w.cfg.DirectoryDatePattern, now)
	if destDir != w.cfg.TargetDirectory {
		if err := retry.DoVoid(ctx, nil, func() error {
			return w.fs.Mkdirs(ctx, destDir)
		}); err != nil {
			return fmt.Errorf("ingest: worker %d creating destination dir: %w", w.index, err)
		}
	}

	// 6. Rename under retry.
	finalPath := path.Join(destDir, finalFileName(now, w.cfg.InstanceName, w.index))
	if err := retry.DoVoid(ctx, nil, func() error {
		return w.fs.Rename(ctx, w.tempPath, finalPath)
	}); err != nil {
		return fmt.Errorf("ingest: worker %d renaming to final path: %w", w.index, err)
	}
	w.log.Info("finalised column file", "path", finalPath, "records", recordCount, "bytes", dataSize)

	// 7. Commit offsets (next-to-consume = offset + 1), then clear.
	if len(w.writtenOffsets) > 0 {
		offsets := make(map[logclient.Partition]int64, len(w.writtenOffsets))
		for p, off := range w.writtenOffsets {
			offsets[p] = off + 1
		}
		w.consumer.CommitAsync(offsets)
		w.writtenOffsets = make(map[logclient.Partition]int64)
	}
	return nil
}

// stop begins the shutdown handshake of §4.3: flip running false and
// wake the blocked poll. The consumer is closed later by closeConsumer,
// after the worker has been joined. It does not finalise
// the in-flight file — a partial file is deliberately discarded on
// shutdown (§7 "On clean shutdown, the last partial file is discarded").
func (w *worker) stop() {
	w.running.Store(false)
	w.consumer.Wakeup()
}

// closeConsumer releases the consumer session, logging rather than
// propagating any I/O error (§4.4 "close... logged and swallowed").
func (w *worker) closeConsumer() {
	w.closeLock.Lock()
	defer w.closeLock.Unlock()
	if err := w.consumer.Close(); err != nil {
		w.log.Warn("error closing consumer", "err", err)
	}
}
