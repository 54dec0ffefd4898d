// Package config assembles and validates the immutable configuration the
// writer supervisor (internal/ingest) depends on, following the builder
// pattern the teacher applies to its own internal/controller.Config: a
// plain struct for the fully-assembled, validated value, and a separate
// Builder that accumulates fields and runs range checks once at Build
// time.
package config

import (
	"fmt"
	"time"

	"github.com/kafkaparquet/writer/internal/columnfile"
	"github.com/kafkaparquet/writer/internal/record"
)

// minFileBytes is the smallest non-zero max-file-bytes accepted: anything
// smaller underflows column-file format overhead (row-group/page headers).
const minFileBytes = 102400

// Config is the immutable, validated configuration a writer supervisor is
// constructed from. Build it with NewBuilder: Builder.Build is where the
// validation runs, and a Config written as a struct literal (its fields
// are exported) has not been validated.
type Config struct {
	InstanceName string
	Topic        string

	// ConsumerProperties is copied and mutated by Builder.Build to force
	// auto-commit off, a raw-bytes value deserializer, and a default
	// group-id, matching §3's "mutated at construction" contract.
	ConsumerProperties map[string]string

	TargetDirectory    string
	FileSystemURI      string
	DirectoryDatePattern string // empty = flat layout

	Record record.Descriptor

	ColumnFileProperties columnfile.Properties

	WorkerCount          int
	MaxRecordsPerFile    int64
	MaxFileBytes         int64
	MaxFileOpenDuration  time.Duration
	RecordErrorPolicy    record.ErrorPolicy

	// PollTimeout is derived, not set directly: min(1s, MaxFileOpenDuration
	// if positive else +Inf). See Builder.Build.
	PollTimeout time.Duration
}

// Builder accumulates configuration fields before a single validating
// Build call, mirroring the teacher's pattern of a plain options struct
// plus an explicit construction step that can fail.
type Builder struct {
	instanceName string
	topic        string

	consumerProperties map[string]string
	groupIDPrefix      string

	targetDirectory      string
	fileSystemURI        string
	directoryDatePattern string

	recordDescriptor record.Descriptor

	columnFileProperties columnfile.Properties
	propertiesSet        bool

	workerCount         int
	maxRecordsPerFile   int64
	maxFileBytes        int64
	maxFileOpenDuration time.Duration
	recordErrorPolicy   record.ErrorPolicy
}

// NewBuilder returns a Builder pre-populated with the defaults from §4.5:
// uncompressed/dictionary-on column-file properties, worker-count 1,
// unbounded max-records-per-file, 1GiB max-file-bytes, unbounded
// max-file-open-duration, flat directory layout, fail-fast record errors.
func NewBuilder() *Builder {
	return &Builder{
		consumerProperties:   make(map[string]string),
		groupIDPrefix:        "writer",
		columnFileProperties: columnfile.DefaultProperties(),
		propertiesSet:        true,
		workerCount:          1,
		maxRecordsPerFile:    0,
		maxFileBytes:         1 << 30,
		maxFileOpenDuration:  0,
		recordErrorPolicy:    record.FailFast,
	}
}

func (b *Builder) InstanceName(name string) *Builder { b.instanceName = name; return b }
func (b *Builder) Topic(topic string) *Builder        { b.topic = topic; return b }

// GroupIDPrefix sets the prefix used to default group-id to
// "<prefix>-<instance-name>" when the consumer properties don't already
// carry one (§3, §6).
func (b *Builder) GroupIDPrefix(prefix string) *Builder { b.groupIDPrefix = prefix; return b }

func (b *Builder) ConsumerProperty(key, value string) *Builder {
	b.consumerProperties[key] = value
	return b
}

func (b *Builder) TargetDirectory(dir string) *Builder { b.targetDirectory = dir; return b }
func (b *Builder) FileSystemURI(uri string) *Builder    { b.fileSystemURI = uri; return b }

func (b *Builder) DirectoryDatePattern(pattern string) *Builder {
	b.directoryDatePattern = pattern
	return b
}

func (b *Builder) RecordDescriptor(d record.Descriptor) *Builder {
	b.recordDescriptor = d
	return b
}

func (b *Builder) ColumnFileProperties(p columnfile.Properties) *Builder {
	b.columnFileProperties = p
	b.propertiesSet = true
	return b
}

func (b *Builder) WorkerCount(n int) *Builder             { b.workerCount = n; return b }
func (b *Builder) MaxRecordsPerFile(n int64) *Builder     { b.maxRecordsPerFile = n; return b }
func (b *Builder) MaxFileBytes(n int64) *Builder          { b.maxFileBytes = n; return b }
func (b *Builder) MaxFileOpenDuration(d time.Duration) *Builder {
	b.maxFileOpenDuration = d
	return b
}
func (b *Builder) RecordErrorPolicy(p record.ErrorPolicy) *Builder {
	b.recordErrorPolicy = p
	return b
}

// Build validates the accumulated fields per §4.5 and returns the
// immutable Config, mutating a copy of the consumer properties to force
// the required overrides (§3, §6): auto-commit off, raw-bytes value
// deserializer, and a defaulted group-id.
func (b *Builder) Build() (Config, error) {
	if b.instanceName == "" {
		return Config{}, fmt.Errorf("config: instance name must not be empty")
	}
	if b.topic == "" {
		return Config{}, fmt.Errorf("config: topic must not be empty")
	}
	if b.recordDescriptor.Parse == nil {
		return Config{}, fmt.Errorf("config: record parser must not be nil")
	}
	if b.recordDescriptor.TypeName == "" {
		return Config{}, fmt.Errorf("config: record type name must not be empty")
	}
	if len(b.consumerProperties) == 0 {
		return Config{}, fmt.Errorf("config: consumer properties must not be empty")
	}
	if b.workerCount <= 0 {
		return Config{}, fmt.Errorf("config: worker count must be > 0, got %d", b.workerCount)
	}
	if b.columnFileProperties.BlockSizeBytes <= 0 {
		return Config{}, fmt.Errorf("config: column-file block size must be > 0")
	}
	if b.columnFileProperties.PageSizeBytes <= 0 {
		return Config{}, fmt.Errorf("config: column-file page size must be > 0")
	}
	if b.maxFileBytes != 0 && b.maxFileBytes < minFileBytes {
		return Config{}, fmt.Errorf("config: max file bytes must be 0 or >= %d, got %d", minFileBytes, b.maxFileBytes)
	}
	if b.maxFileOpenDuration < 0 {
		return Config{}, fmt.Errorf("config: max file open duration must be >= 0")
	}
	if b.fileSystemURI == "" {
		return Config{}, fmt.Errorf("config: filesystem URI must not be empty")
	}
	if b.targetDirectory == "" {
		return Config{}, fmt.Errorf("config: target directory must not be empty")
	}

	props := make(map[string]string, len(b.consumerProperties)+3)
	for k, v := range b.consumerProperties {
		props[k] = v
	}
	props["enable.auto.commit"] = "false"
	props["value.deserializer"] = "raw-bytes"
	if _, ok := props["group.id"]; !ok {
		props["group.id"] = fmt.Sprintf("%s-%s", b.groupIDPrefix, b.instanceName)
	}

	pollTimeout := time.Second
	if b.maxFileOpenDuration > 0 && b.maxFileOpenDuration < pollTimeout {
		pollTimeout = b.maxFileOpenDuration
	}

	return Config{
		InstanceName:         b.instanceName,
		Topic:                b.topic,
		ConsumerProperties:   props,
		TargetDirectory:      b.targetDirectory,
		FileSystemURI:        b.fileSystemURI,
		DirectoryDatePattern: b.directoryDatePattern,
		Record:               b.recordDescriptor,
		ColumnFileProperties: b.columnFileProperties,
		WorkerCount:          b.workerCount,
		MaxRecordsPerFile:    b.maxRecordsPerFile,
		MaxFileBytes:         b.maxFileBytes,
		MaxFileOpenDuration:  b.maxFileOpenDuration,
		RecordErrorPolicy:    b.recordErrorPolicy,
		PollTimeout:          pollTimeout,
	}, nil
}
