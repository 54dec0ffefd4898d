package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kafkaparquet/writer/internal/objectstore"
)

const validYAML = `
instance:
  name: writer-1
  topic: sensor-readings
  consumer:
    bootstrap.servers: localhost:9092

output:
  target_directory: /tmp/writer-out
  filesystem_uri: file:///tmp/writer-out

rollover:
  worker_count: 2
  max_file_bytes: 268435456

metrics:
  enabled: false
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "writer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd)
	assert.Equal(t, "writer", cmd.Use)

	commands := cmd.Commands()
	names := make(map[string]bool, len(commands))
	for _, c := range commands {
		names[c.Use] = true
	}
	assert.True(t, names["run"])
	assert.True(t, names["validate-config"])

	flag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "configs/writer.yaml", flag.DefValue)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "writer-1", cfg.InstanceName)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, int64(268435456), cfg.MaxFileBytes)
	assert.NotNil(t, cfg.Record.Parse)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := loadConfig("/nonexistent/writer.yaml")
	assert.Error(t, err)
}

func TestLoadConfig_RejectsMissingInstanceName(t *testing.T) {
	path := writeConfig(t, `
instance:
  topic: t
  consumer:
    bootstrap.servers: localhost:9092
output:
  target_directory: /tmp/out
  filesystem_uri: file:///tmp/out
`)
	_, err := loadConfig(path)
	assert.Error(t, err)
}

func TestFilesystemFor_SelectsLocalByScheme(t *testing.T) {
	fs, err := filesystemFor("file:///tmp/out")
	require.NoError(t, err)
	assert.IsType(t, &objectstore.LocalFS{}, fs)
}

func TestFilesystemFor_RejectsUnknownScheme(t *testing.T) {
	_, err := filesystemFor("gs://bucket/prefix")
	assert.Error(t, err)
}
