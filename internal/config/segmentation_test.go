package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSegmentationConfigIsValid(t *testing.T) {
	assert.NoError(t, ValidateSegmentationConfig(DefaultSegmentationConfig()))
}

func TestValidateSegmentationConfigRejectsBadClusters(t *testing.T) {
	cfg := DefaultSegmentationConfig()
	cfg.DefaultClusters = cfg.MaxClusters + 1
	assert.Error(t, ValidateSegmentationConfig(cfg))

	cfg = DefaultSegmentationConfig()
	cfg.MaxIterations = 0
	assert.Error(t, ValidateSegmentationConfig(cfg))
}

func TestNewSegmentationConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "segmentation.yml")
	content := []byte(`segmentation:
  maxClusters: 6
  maxIterations: 25
  lockTTL: 30s
  predefined:
    highValueMinPurchases: 5000
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	holder, err := NewSegmentationConfigHolder(Config{SegmentationConfigPath: path})
	require.NoError(t, err)

	cfg := holder.Get()
	assert.Equal(t, 6, cfg.MaxClusters)
	assert.Equal(t, 25, cfg.MaxIterations)
	assert.Equal(t, 30*time.Second, cfg.LockTTL)
	assert.Equal(t, 5000.0, cfg.Predefined.HighValueMinPurchases)
	assert.Equal(t, 3, cfg.DefaultClusters)
	assert.Equal(t, 90, cfg.Predefined.AtRiskAfterDays)
}

func TestNilHolderFallsBackToDefaults(t *testing.T) {
	var holder *SegmentationConfigHolder
	assert.Equal(t, DefaultSegmentationConfig(), holder.Get())
}
