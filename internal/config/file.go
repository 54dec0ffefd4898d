package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kafkaparquet/writer/internal/columnfile"
	"github.com/kafkaparquet/writer/internal/record"
	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML-facing configuration shape, mirroring the
// teacher's internal/cli.Config: a struct of nested sections matched to
// config-file fields via yaml tags, translated by ToBuilder into the
// validated domain Config rather than used directly.
type FileConfig struct {
	Instance struct {
		Name          string            `yaml:"name"`
		GroupIDPrefix string            `yaml:"group_id_prefix"`
		Topic         string            `yaml:"topic"`
		Consumer      map[string]string `yaml:"consumer"`
	} `yaml:"instance"`

	Output struct {
		TargetDirectory      string `yaml:"target_directory"`
		FileSystemURI        string `yaml:"filesystem_uri"`
		DirectoryDatePattern string `yaml:"directory_date_pattern"`
	} `yaml:"output"`

	ColumnFile struct {
		BlockSizeBytes int64  `yaml:"block_size_bytes"`
		PageSizeBytes  int64  `yaml:"page_size_bytes"`
		// DictionaryOn is a pointer so an absent key keeps the builder
		// default (true) while an explicit `dictionary_on: false` can
		// still override it — a bare bool can't tell "absent" from
		// "explicitly false".
		DictionaryOn *bool  `yaml:"dictionary_on"`
		Compression  string `yaml:"compression"`
	} `yaml:"column_file"`

	Rollover struct {
		WorkerCount            int   `yaml:"worker_count"`
		MaxRecordsPerFile      int64 `yaml:"max_records_per_file"`
		MaxFileBytes           int64 `yaml:"max_file_bytes"`
		MaxFileOpenDurationMs  int64 `yaml:"max_file_open_duration_ms"`
	} `yaml:"rollover"`

	RecordErrorPolicy string `yaml:"record_error_policy"` // "fail_fast" | "skip_and_count"

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Port    int    `yaml:"port"`
		Prefix  string `yaml:"prefix"`
	} `yaml:"metrics"`
}

// LoadFileConfig reads and parses a YAML config file, matching the
// teacher's internal/cli.loadConfig helper.
func LoadFileConfig(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config file: %w", err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: failed to parse config YAML: %w", err)
	}
	return &fc, nil
}

// ToBuilder starts a Builder pre-populated from the file config's fields;
// the caller still supplies the record descriptor (parser + type name),
// which has no YAML representation (§3: "record-type descriptor + parser
// function" is always supplied in code).
func (fc *FileConfig) ToBuilder() (*Builder, error) {
	b := NewBuilder()

	b.InstanceName(fc.Instance.Name)
	b.Topic(fc.Instance.Topic)
	if fc.Instance.GroupIDPrefix != "" {
		b.GroupIDPrefix(fc.Instance.GroupIDPrefix)
	}
	for k, v := range fc.Instance.Consumer {
		b.ConsumerProperty(k, v)
	}

	b.TargetDirectory(fc.Output.TargetDirectory)
	b.FileSystemURI(fc.Output.FileSystemURI)
	b.DirectoryDatePattern(fc.Output.DirectoryDatePattern)

	props := columnfile.DefaultProperties()
	if fc.ColumnFile.BlockSizeBytes > 0 {
		props.BlockSizeBytes = fc.ColumnFile.BlockSizeBytes
	}
	if fc.ColumnFile.PageSizeBytes > 0 {
		props.PageSizeBytes = fc.ColumnFile.PageSizeBytes
	}
	if fc.ColumnFile.DictionaryOn != nil {
		props.DictionaryOn = *fc.ColumnFile.DictionaryOn
	}
	codec, err := parseCodec(fc.ColumnFile.Compression)
	if err != nil {
		return nil, err
	}
	props.CompressionCodec = codec
	b.ColumnFileProperties(props)

	if fc.Rollover.WorkerCount > 0 {
		b.WorkerCount(fc.Rollover.WorkerCount)
	}
	b.MaxRecordsPerFile(fc.Rollover.MaxRecordsPerFile)
	if fc.Rollover.MaxFileBytes > 0 {
		b.MaxFileBytes(fc.Rollover.MaxFileBytes)
	}
	b.MaxFileOpenDuration(time.Duration(fc.Rollover.MaxFileOpenDurationMs) * time.Millisecond)

	policy, err := parseRecordErrorPolicy(fc.RecordErrorPolicy)
	if err != nil {
		return nil, err
	}
	b.RecordErrorPolicy(policy)

	return b, nil
}

func parseCodec(name string) (columnfile.CompressionCodec, error) {
	switch name {
	case "", "uncompressed":
		return columnfile.CompressionUncompressed, nil
	case "snappy":
		return columnfile.CompressionSnappy, nil
	case "gzip":
		return columnfile.CompressionGzip, nil
	default:
		return 0, fmt.Errorf("config: unknown compression codec %q", name)
	}
}

func parseRecordErrorPolicy(name string) (record.ErrorPolicy, error) {
	switch name {
	case "", "fail_fast":
		return record.FailFast, nil
	case "skip_and_count":
		return record.SkipAndCount, nil
	default:
		return 0, fmt.Errorf("config: unknown record error policy %q", name)
	}
}
