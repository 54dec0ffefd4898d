package record

import (
	"fmt"

	"google.golang.org/protobuf/proto"
)

// SensorReadingRow is the Parquet row shape for SensorReading, with the
// struct tags github.com/xitongsys/parquet-go reads via reflection to
// build the file's schema.
type SensorReadingRow struct {
	DeviceID    string  `parquet:"name=device_id, type=BYTE_ARRAY, convertedtype=UTF8"`
	TimestampMs int64   `parquet:"name=timestamp_ms, type=INT64"`
	Value       float64 `parquet:"name=value, type=DOUBLE"`
	Unit        string  `parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// SensorReadingToRow is the columnfile.RowConverter for SensorReading.
func SensorReadingToRow(msg proto.Message) (any, error) {
	refl := msg.ProtoReflect()
	fields := refl.Descriptor().Fields()

	deviceIDField := fields.ByName(sensorFieldDeviceID)
	timestampField := fields.ByName(sensorFieldTimestampMs)
	valueField := fields.ByName(sensorFieldValue)
	unitField := fields.ByName(sensorFieldUnit)
	if deviceIDField == nil || timestampField == nil || valueField == nil || unitField == nil {
		return nil, fmt.Errorf("record: message does not match SensorReading schema")
	}

	return &SensorReadingRow{
		DeviceID:    refl.Get(deviceIDField).String(),
		TimestampMs: refl.Get(timestampField).Int(),
		Value:       refl.Get(valueField).Float(),
		Unit:        refl.Get(unitField).String(),
	}, nil
}
