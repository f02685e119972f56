package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sqlite:\n  path: /tmp/test.db\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.SQLite.Path)
	assert.Equal(t, "auto", cfg.Analysis.TrendMode)
	assert.InDelta(t, 0.05, cfg.Analysis.Alpha, 1e-9)
	assert.Equal(t, "performance_rate", cfg.Analysis.Metric)
	assert.Equal(t, "10II", cfg.API.PlanCode)
	assert.Equal(t, 4, cfg.API.Workers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFileRejectsUnknownTrendMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  trendMode: fancy\n"), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsUnknownMetric(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  metric: dropout_rate\n"), 0o644))

	_, err := LoadFile(path)
	assert.ErrorContains(t, err, "analysis.metric")
}

func TestLoadFileEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api:\n  planCode: 09AA\n"), 0o644))
	t.Setenv("DASOS_API_PLANCODE", "10II")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10II", cfg.API.PlanCode)
}
