package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kafkaparquet/writer/internal/columnfile"
	"github.com/kafkaparquet/writer/internal/config"
	"github.com/kafkaparquet/writer/internal/logclient"
	"github.com/kafkaparquet/writer/internal/metrics"
	"github.com/kafkaparquet/writer/internal/objectstore"
)

// ConsumerFactory builds one Consumer per worker index, so that each
// worker gets its own session participating in the same consumer group
// (§3 "consumer — log session; owns partition assignment").
type ConsumerFactory func(index int) (logclient.Consumer, error)

// Supervisor is the writer supervisor (C4, §4.4): it holds shared
// immutable configuration and the worker pool, and owns orderly
// start/stop, mirroring the teacher's Controller start/Stop shape
// (internal/controller.Controller) generalised from four coordination
// loops to a flat pool of independent ingest workers.
type Supervisor struct {
	cfg             config.Config
	consumerFactory ConsumerFactory
	fs              objectstore.FileSystem
	newWriter       columnfile.Factory
	sink            metrics.Sink

	workers []*worker

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	errOnce sync.Once
	firstErr error
}

// NewSupervisor wires the shared collaborators a Supervisor needs. sink
// may be metrics.NopSink{} when metrics are disabled.
func NewSupervisor(cfg config.Config, consumerFactory ConsumerFactory, fs objectstore.FileSystem, newWriter columnfile.Factory, sink metrics.Sink) *Supervisor {
	return &Supervisor{
		cfg:             cfg,
		consumerFactory: consumerFactory,
		fs:              fs,
		newWriter:       newWriter,
		sink:            sink,
	}
}

// Start creates WorkerCount workers, each on an independent goroutine,
// and fails fast if any worker cannot establish log connectivity (§4.4
// "start is non-blocking and fails fast if any worker fails to init").
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.workers = make([]*worker, s.cfg.WorkerCount)
	for i := 0; i < s.cfg.WorkerCount; i++ {
		consumer, err := s.consumerFactory(i)
		if err != nil {
			cancel()
			return fmt.Errorf("ingest: supervisor: building consumer for worker %d: %w", i, err)
		}
		w := newWorker(i, s.cfg, consumer, s.fs, s.newWriter, s.sink)
		if err := w.init(runCtx); err != nil {
			cancel()
			return fmt.Errorf("ingest: supervisor: initialising worker %d: %w", i, err)
		}
		s.workers[i] = w
	}

	for _, w := range s.workers {
		s.wg.Add(1)
		go s.runWorker(runCtx, w)
	}

	log.Info("supervisor started", "instance", s.cfg.InstanceName, "workers", s.cfg.WorkerCount)
	return nil
}

func (s *Supervisor) runWorker(ctx context.Context, w *worker) {
	defer s.wg.Done()
	defer close(w.doneCh)

	err := w.run(ctx)
	if err != nil {
		s.errOnce.Do(func() { s.firstErr = err })
		log.Error("worker failed", "instance", s.cfg.InstanceName, "worker", w.index, "err", err)
	}
}

// Close implements the shutdown handshake of §4.3/§4.4: flip each
// worker's running flag and wake its consumer, cancel the workers'
// context while holding every worker's closeLock, join every worker, then
// close every consumer. Close-time I/O errors are logged and swallowed
// (§4.4 "does not throw on close errors") so no worker is stranded by an
// earlier failure.
func (s *Supervisor) Close() error {
	for _, w := range s.workers {
		w.stop()
	}
	if s.cancel != nil {
		for _, w := range s.workers {
			w.closeLock.Lock()
		}
		s.cancel()
		for _, w := range s.workers {
			w.closeLock.Unlock()
		}
	}
	s.wg.Wait()
	for _, w := range s.workers {
		w.closeConsumer()
	}
	log.Info("supervisor stopped", "instance", s.cfg.InstanceName)
	return nil
}

// FirstWorkerError returns the first fatal error observed by any worker,
// or nil if every worker exited cleanly. The supervisor itself never
// restarts a failed worker — external supervision is expected (§7).
func (s *Supervisor) FirstWorkerError() error {
	return s.firstErr
}
