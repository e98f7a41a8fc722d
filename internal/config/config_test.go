package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/nwp-ensemble/internal/nwp"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.OutDir)
	assert.Equal(t, 72, cfg.Hours)
	assert.Equal(t, nwp.DefaultWorkers, cfg.Workers)
	assert.Equal(t, nwp.AllProviders, cfg.Providers)
	assert.Equal(t, nwp.DefaultVariables, cfg.Variables)

	// Default region is the Halifax Harbour bounding box.
	assert.InDelta(t, 44.5, cfg.Region.LatMin, 1e-9)
	assert.InDelta(t, 44.8, cfg.Region.LatMax, 1e-9)
	assert.InDelta(t, -63.6, cfg.Region.LonMin, 1e-9)
	assert.InDelta(t, -63.4, cfg.Region.LonMax, 1e-9)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("PROVIDERS", "gfs,ukmo")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ukmo")
}

func TestLoadProviderSubset(t *testing.T) {
	t.Setenv("PROVIDERS", "hrrr,rap")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []nwp.Provider{nwp.ProviderHRRR, nwp.ProviderRAP}, cfg.Providers)
}

func TestLoadExplicitRegion(t *testing.T) {
	t.Setenv("LAT_MIN", "40.0")
	t.Setenv("LAT_MAX", "41.0")
	t.Setenv("LON_MIN", "-74.5")
	t.Setenv("LON_MAX", "-73.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 40.0, cfg.Region.LatMin, 1e-9)
	assert.InDelta(t, -73.5, cfg.Region.LonMax, 1e-9)
}

func TestLoadRejectsInvertedRegion(t *testing.T) {
	t.Setenv("LAT_MIN", "45.0")
	t.Setenv("LAT_MAX", "44.0")
	t.Setenv("LON_MIN", "-63.6")
	t.Setenv("LON_MAX", "-63.4")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidateAfterOverrides(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Workers = 0
	assert.Error(t, cfg.Validate())

	cfg.Workers = 4
	cfg.Hours = -1
	assert.Error(t, cfg.Validate())
}
