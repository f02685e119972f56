package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/henny-hen/DASOS-backend/internal/pipeline"
	"github.com/henny-hen/DASOS-backend/pkg/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := &config.Config{}
	cfg.SQLite.Path = filepath.Join(dir, "academic.db")
	cfg.API.CacheDir = filepath.Join(dir, "cache")
	cfg.API.BaseURL = "http://127.0.0.1:1"
	cfg.API.Workers = 2
	cfg.Analysis.TrendMode = "auto"
	cfg.Analysis.Alpha = 0.05
	return cfg
}

func TestOpenWiresComponents(t *testing.T) {
	c, err := Open(testConfig(t), Options{})
	require.NoError(t, err)
	defer c.Close()

	assert.NotNil(t, c.Store)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.API)
	assert.NotNil(t, c.Syncer)
	assert.NotNil(t, c.Processor)
	require.NotNil(t, c.Runner)

	summary, err := c.Runner.Run(context.Background(), pipeline.Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "auto", summary.TrendMode)
	assert.Equal(t, 0, summary.SubjectsTotal)
}

func TestOpenTrendModeOverride(t *testing.T) {
	c, err := Open(testConfig(t), Options{TrendMode: "basic"})
	require.NoError(t, err)
	defer c.Close()

	summary, err := c.Runner.Run(context.Background(), pipeline.Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "basic", summary.TrendMode)
}

func TestOpenAppliesConfiguredMetric(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.Metric = "success_rate"
	c, err := Open(cfg, Options{})
	require.NoError(t, err)
	defer c.Close()

	summary, err := c.Runner.Run(context.Background(), pipeline.Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "success_rate", summary.Metric)

	run, err := c.Store.GetAnalysisRun(summary.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, "success_rate", run.Metric)
}

func TestOpenRejectsUnknownTrendMode(t *testing.T) {
	_, err := Open(testConfig(t), Options{TrendMode: "fancy"})
	assert.ErrorContains(t, err, "unknown trend mode")
}
