package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafkaparquet/writer/internal/record"
)

func dummyDescriptor(t *testing.T) record.Descriptor {
	t.Helper()
	return record.SensorReadingDescriptor()
}

func TestBuilder_DefaultsAndOverrides(t *testing.T) {
	cfg, err := NewBuilder().
		InstanceName("writer-1").
		Topic("sensor-readings").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data/out").
		FileSystemURI("file:///data/out").
		RecordDescriptor(dummyDescriptor(t)).
		Build()
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.WorkerCount)
	assert.Equal(t, int64(1<<30), cfg.MaxFileBytes)
	assert.Equal(t, record.FailFast, cfg.RecordErrorPolicy)
	assert.Equal(t, "false", cfg.ConsumerProperties["enable.auto.commit"])
	assert.Equal(t, "raw-bytes", cfg.ConsumerProperties["value.deserializer"])
	assert.Equal(t, "writer-writer-1", cfg.ConsumerProperties["group.id"])
	assert.Equal(t, time.Second, cfg.PollTimeout)
}

func TestBuilder_GroupIDNotOverriddenWhenSet(t *testing.T) {
	cfg, err := NewBuilder().
		InstanceName("writer-1").
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		ConsumerProperty("group.id", "custom-group").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		RecordDescriptor(dummyDescriptor(t)).
		Build()
	require.NoError(t, err)
	assert.Equal(t, "custom-group", cfg.ConsumerProperties["group.id"])
}

func TestBuilder_PollTimeoutDerivedFromMaxFileOpenDuration(t *testing.T) {
	cfg, err := NewBuilder().
		InstanceName("writer-1").
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		RecordDescriptor(dummyDescriptor(t)).
		MaxFileOpenDuration(200 * time.Millisecond).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.PollTimeout)
}

func TestBuilder_RejectsEmptyInstanceName(t *testing.T) {
	_, err := NewBuilder().
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		RecordDescriptor(dummyDescriptor(t)).
		Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsTooSmallMaxFileBytes(t *testing.T) {
	_, err := NewBuilder().
		InstanceName("writer-1").
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		RecordDescriptor(dummyDescriptor(t)).
		MaxFileBytes(1024).
		Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsZeroWorkerCount(t *testing.T) {
	_, err := NewBuilder().
		InstanceName("writer-1").
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		RecordDescriptor(dummyDescriptor(t)).
		WorkerCount(0).
		Build()
	assert.Error(t, err)
}

func TestBuilder_RejectsMissingRecordDescriptor(t *testing.T) {
	_, err := NewBuilder().
		InstanceName("writer-1").
		Topic("t").
		ConsumerProperty("bootstrap.servers", "localhost:9092").
		TargetDirectory("/data").
		FileSystemURI("file:///data").
		Build()
	assert.Error(t, err)
}
