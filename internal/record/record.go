// Package record defines the injectable record type and parser contract
// used by the ingest engine. The engine itself never looks inside a
// record; it only needs to parse bytes into a proto.Message, hand the
// result to the column-file writer, and size it for the written.bytes
// metric.
package record

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// Parser converts one wire-format record (the raw bytes delivered by the
// log) into a typed protobuf message. A non-nil error is fatal to the
// worker unless the configured RecordErrorPolicy is SkipAndCount.
type Parser func(raw []byte) (proto.Message, error)

// ErrorPolicy controls how a worker reacts to a Parser error.
type ErrorPolicy int

const (
	// FailFast aborts the worker on the first malformed record. This is
	// the conservative default and matches the original design's
	// unconditional fatal treatment.
	FailFast ErrorPolicy = iota
	// SkipAndCount drops the malformed record, increments a parse-error
	// counter, and continues the ingest loop.
	SkipAndCount
)

// Descriptor pairs a Parser with a human-readable name for the type it
// produces, used only for logging and error messages.
type Descriptor struct {
	TypeName string
	Parse    Parser
}

// NewDescriptor validates that name and parse are both supplied; the
// builder in internal/config rejects a nil parser or empty type name at
// construction time (§4.5 of the design).
func NewDescriptor(typeName string, parse Parser) (Descriptor, error) {
	if typeName == "" {
		return Descriptor{}, fmt.Errorf("record: type name must not be empty")
	}
	if parse == nil {
		return Descriptor{}, fmt.Errorf("record: parser must not be nil")
	}
	return Descriptor{TypeName: typeName, Parse: parse}, nil
}
