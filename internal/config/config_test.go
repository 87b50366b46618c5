package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fluxtask.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerPort, cfg.WorkerPort)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.InDelta(t, 0.1, cfg.LearningRate, 1e-9)
	assert.InDelta(t, 0.2, cfg.Alpha, 1e-9)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
worker_port: 9090
learning_rate: 0.05
anomaly_z_threshold: 3.0
log_level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.WorkerPort)
	assert.InDelta(t, 0.05, cfg.LearningRate, 1e-9)
	assert.InDelta(t, 3.0, cfg.AnomalyZThreshold, 1e-9)
	assert.Equal(t, "debug", cfg.LogLevel)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.2, cfg.Alpha, 1e-9)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "worker_port: 9090\n")
	t.Setenv("FLUXTASK_WORKER_PORT", "7070")
	t.Setenv("FLUXTASK_LEARNING_RATE", "0.2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.WorkerPort)
	assert.InDelta(t, 0.2, cfg.LearningRate, 1e-9)
}

func TestLoad_MissingFileIsFine(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkerPort, cfg.WorkerPort)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "learning_rate: 1.5\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "worker_port: -1\n"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "alpha: 0\n"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "worker_port: [not a number\n"))
	assert.Error(t, err)
}
