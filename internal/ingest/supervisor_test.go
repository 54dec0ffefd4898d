package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafkaparquet/writer/internal/columnfile"
	"github.com/kafkaparquet/writer/internal/config"
	"github.com/kafkaparquet/writer/internal/logclient"
	"github.com/kafkaparquet/writer/internal/metrics"
	"github.com/kafkaparquet/writer/internal/objectstore"
	"github.com/kafkaparquet/writer/internal/record"
	"google.golang.org/protobuf/proto"
)

func testConfig(t *testing.T, opts func(*config.Builder)) config.Config {
	t.Helper()
	b := config.NewBuilder().
		InstanceName("writer-1").
		Topic("sensor-readings").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data/out").
		FileSystemURI("memory://").
		RecordDescriptor(record.SensorReadingDescriptor())
	if opts != nil {
		opts(b)
	}
	cfg, err := b.Build()
	require.NoError(t, err)
	return cfg
}

// fsFakeWriter is a FakeWriter whose temp file appears in fs when it is
// closed, the way a memWriter's contents land in a MemoryFS on Close, so
// the finaliser has a temp file to rename.
type fsFakeWriter struct {
	*columnfile.FakeWriter
	fs   objectstore.FileSystem
	path string
}

func (w fsFakeWriter) Close() error {
	if err := w.FakeWriter.Close(); err != nil {
		return err
	}
	f, err := w.fs.Create(context.Background(), w.path)
	if err != nil {
		return err
	}
	return f.Close()
}

func newTestRig(cfg config.Config, consumer *logclient.FakeConsumer) (*Supervisor, *objectstore.MemoryFS, func() []*columnfile.FakeWriter) {
	fs := objectstore.NewMemoryFS()
	var opened []*columnfile.FakeWriter
	newWriter := func(path string) (columnfile.Writer, error) {
		w := columnfile.NewFakeWriter()
		opened = append(opened, w)
		return fsFakeWriter{FakeWriter: w, fs: fs, path: path}, nil
	}
	sup := NewSupervisor(cfg, func(index int) (logclient.Consumer, error) {
		return consumer, nil
	}, fs, newWriter, metrics.NopSink{})
	return sup, fs, func() []*columnfile.FakeWriter { return opened }
}

func sensorBytes(t *testing.T, deviceID string, ts int64) []byte {
	t.Helper()
	msg := record.NewSensorReading(deviceID, ts, 1.0, "c")
	data, err := proto.Marshal(msg)
	require.NoError(t, err)
	return data
}

// malformedBytes is an incomplete varint: guaranteed to fail
// proto.Unmarshal with an unexpected-EOF error.
var malformedBytes = []byte{0x80}

func TestSupervisor_SizeBasedRollover(t *testing.T) {
	cfg := testConfig(t, func(b *config.Builder) {
		b.MaxRecordsPerFile(2)
	})
	consumer := logclient.NewFakeConsumer(0)
	sup, fs, opened := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(
		logclient.Record{Partition: 0, Offset: 0, Value: sensorBytes(t, "d1", 1)},
		logclient.Record{Partition: 0, Offset: 1, Value: sensorBytes(t, "d1", 2)},
		logclient.Record{Partition: 0, Offset: 2, Value: sensorBytes(t, "d1", 3)},
	)

	require.Eventually(t, func() bool {
		return len(fs.Files()) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
	assert.GreaterOrEqual(t, len(opened()), 2)
	assert.Equal(t, int64(2), consumer.Committed()[0])
}

func TestSupervisor_TimeBasedRollover(t *testing.T) {
	cfg := testConfig(t, func(b *config.Builder) {
		b.MaxFileOpenDuration(20 * time.Millisecond)
	})
	consumer := logclient.NewFakeConsumer(0)
	sup, fs, _ := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 0, Value: sensorBytes(t, "d1", 1)})

	require.Eventually(t, func() bool {
		return len(fs.Files()) >= 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
}

func TestSupervisor_RebalancePrunesWrittenOffsets(t *testing.T) {
	cfg := testConfig(t, nil)
	consumer := logclient.NewFakeConsumer(0, 1)
	sup, _, _ := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(
		logclient.Record{Partition: 0, Offset: 0, Value: sensorBytes(t, "d1", 1)},
		logclient.Record{Partition: 1, Offset: 0, Value: sensorBytes(t, "d2", 1)},
	)

	require.Eventually(t, func() bool {
		w := sup.workers[0]
		return len(w.writtenOffsets) == 2
	}, time.Second, 5*time.Millisecond)

	consumer.Rebalance([]logclient.Partition{1}, []logclient.Partition{0})

	require.Eventually(t, func() bool {
		w := sup.workers[0]
		_, hasOne := w.writtenOffsets[1]
		return !hasOne
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
}

func TestSupervisor_CleanShutdownDropsInFlightFile(t *testing.T) {
	cfg := testConfig(t, nil)
	consumer := logclient.NewFakeConsumer(0)
	sup, fs, _ := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 0, Value: sensorBytes(t, "d1", 1)})

	require.Eventually(t, func() bool {
		w := sup.workers[0]
		return w.currentFile != nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
	assert.Empty(t, fs.Files())
	assert.Empty(t, consumer.Committed())
}

func TestSupervisor_TransientFilesystemFailureRetriesUntilSuccess(t *testing.T) {
	cfg := testConfig(t, func(b *config.Builder) {
		b.MaxRecordsPerFile(1)
	})
	consumer := logclient.NewFakeConsumer(0)
	baseFS := objectstore.NewMemoryFS()
	flaky := objectstore.NewFlakyFS(baseFS, 2, 0)

	var opened []*columnfile.FakeWriter
	newWriter := func(path string) (columnfile.Writer, error) {
		w := columnfile.NewFakeWriter()
		opened = append(opened, w)
		return fsFakeWriter{FakeWriter: w, fs: baseFS, path: path}, nil
	}
	sup := NewSupervisor(cfg, func(index int) (logclient.Consumer, error) {
		return consumer, nil
	}, flaky, newWriter, metrics.NopSink{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 0, Value: sensorBytes(t, "d1", 1)})

	require.Eventually(t, func() bool {
		return len(baseFS.Files()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
}

func TestSupervisor_MalformedRecordFailsWorkerByDefault(t *testing.T) {
	cfg := testConfig(t, nil)
	consumer := logclient.NewFakeConsumer(0)
	sup, _, _ := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 0, Value: malformedBytes})

	require.Eventually(t, func() bool {
		return sup.FirstWorkerError() != nil
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sup.Close())
}

func TestSupervisor_MalformedRecordSkippedUnderSkipAndCountPolicy(t *testing.T) {
	cfg := testConfig(t, func(b *config.Builder) {
		b.RecordErrorPolicy(record.SkipAndCount)
	})
	consumer := logclient.NewFakeConsumer(0)
	sup, _, _ := newTestRig(cfg, consumer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, sup.Start(ctx))

	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 0, Value: malformedBytes})
	consumer.Enqueue(logclient.Record{Partition: 0, Offset: 1, Value: sensorBytes(t, "d1", 1)})

	require.Eventually(t, func() bool {
		w := sup.workers[0]
		return w.currentFile != nil && w.currentFile.RecordCount() == 1
	}, time.Second, 5*time.Millisecond)

	require.Nil(t, sup.FirstWorkerError())
	require.NoError(t, sup.Close())
}
