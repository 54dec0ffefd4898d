package record

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/dynamicpb"
)

// SensorReadingType is a schema built at runtime (no protoc step in this
// module) rather than checked in as generated code. It exists so the
// writer has a concrete, exercisable record type for tests and for the
// demo entrypoint; production deployments inject their own protoc-generated
// message type and Parser instead.
var SensorReadingType protoreflect.MessageType = mustBuildSensorReadingType()

const (
	sensorFieldDeviceID    = "device_id"
	sensorFieldTimestampMs = "timestamp_ms"
	sensorFieldValue       = "value"
	sensorFieldUnit        = "unit"
)

func mustBuildSensorReadingType() protoreflect.MessageType {
	fd := &descriptorpb.FileDescriptorProto{
		Name:    proto.String("kafkaparquet/sensor_reading.proto"),
		Package: proto.String("kafkaparquet.record"),
		Syntax:  proto.String("proto3"),
		MessageType: []*descriptorpb.DescriptorProto{
			{
				Name: proto.String("SensorReading"),
				Field: []*descriptorpb.FieldDescriptorProto{
					field(sensorFieldDeviceID, 1, descriptorpb.FieldDescriptorProto_TYPE_STRING),
					field(sensorFieldTimestampMs, 2, descriptorpb.FieldDescriptorProto_TYPE_INT64),
					field(sensorFieldValue, 3, descriptorpb.FieldDescriptorProto_TYPE_DOUBLE),
					field(sensorFieldUnit, 4, descriptorpb.FieldDescriptorProto_TYPE_STRING),
				},
			},
		},
	}

	file, err := protodesc.NewFile(fd, nil)
	if err != nil {
		panic(fmt.Errorf("record: building SensorReading descriptor: %w", err))
	}
	msgDesc := file.Messages().ByName("SensorReading")
	return dynamicpb.NewMessageType(msgDesc)
}

func field(name string, number int32, kind descriptorpb.FieldDescriptorProto_Type) *descriptorpb.FieldDescriptorProto {
	return &descriptorpb.FieldDescriptorProto{
		Name:     proto.String(name),
		Number:   proto.Int32(number),
		Label:    descriptorpb.FieldDescriptorProto_LABEL_OPTIONAL.Enum(),
		Type:     kind.Enum(),
		JsonName: proto.String(name),
	}
}

// NewSensorReading builds a mutable SensorReading instance.
func NewSensorReading(deviceID string, timestampMs int64, value float64, unit string) proto.Message {
	msg := dynamicpb.NewMessage(SensorReadingType.Descriptor())
	fields := msg.Descriptor().Fields()
	msg.Set(fields.ByName(sensorFieldDeviceID), protoreflect.ValueOfString(deviceID))
	msg.Set(fields.ByName(sensorFieldTimestampMs), protoreflect.ValueOfInt64(timestampMs))
	msg.Set(fields.ByName(sensorFieldValue), protoreflect.ValueOfFloat64(value))
	msg.Set(fields.ByName(sensorFieldUnit), protoreflect.ValueOfString(unit))
	return msg
}

// ParseSensorReading is the Parser for SensorReading: unmarshal raw
// protobuf wire bytes into a fresh dynamic message of the schema above.
func ParseSensorReading(raw []byte) (proto.Message, error) {
	msg := dynamicpb.NewMessage(SensorReadingType.Descriptor())
	if err := proto.Unmarshal(raw, msg); err != nil {
		return nil, fmt.Errorf("record: parsing SensorReading: %w", err)
	}
	return msg, nil
}

// SensorReadingDescriptor is the ready-to-inject record.Descriptor for the
// example message type.
func SensorReadingDescriptor() Descriptor {
	d, err := NewDescriptor("kafkaparquet.record.SensorReading", ParseSensorReading)
	if err != nil {
		// Unreachable: both arguments are compile-time constants.
		panic(err)
	}
	return d
}
