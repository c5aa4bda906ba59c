package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRegionView(t *testing.T) {
	tests := []struct {
		name         string
		region       string
		expectedView *RegionView
	}{
		{
			name:   "Municipality",
			region: "北京",
			expectedView: &RegionView{
				Name:      "北京",
				Center:    []float64{39.9042, 116.4074},
				ZoomLevel: 11,
			},
		},
		{
			name:   "Province",
			region: "广东",
			expectedView: &RegionView{
				Name:      "广东",
				Center:    []float64{23.3790, 113.7633},
				ZoomLevel: 7,
			},
		},
		{
			name:         "Unknown region",
			region:       "拉萨",
			expectedView: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := GetRegionView(tt.region)
			if tt.expectedView == nil {
				assert.Nil(t, view)
				return
			}
			require.NotNil(t, view)
			assert.Equal(t, tt.expectedView.Name, view.Name)
			assert.Equal(t, tt.expectedView.ZoomLevel, view.ZoomLevel)
			assert.InDelta(t, tt.expectedView.Center[0], view.Center[0], 0.0001)
			assert.InDelta(t, tt.expectedView.Center[1], view.Center[1], 0.0001)
		})
	}
}

func restoreRegions() {
	regionLock.Lock()
	regions = defaultRegions
	regionLock.Unlock()
}

func TestRegionHierarchy(t *testing.T) {
	t.Cleanup(restoreRegions)

	assert.Equal(t, []string{"上海", "北京", "广东"}, GetProvinces())
	assert.ElementsMatch(t, []string{"广州", "深圳"}, GetCities("广东"))
	assert.Equal(t, []string{"南山", "福田", "罗湖"}, GetDistricts("广东", "深圳"))
	assert.Empty(t, GetCities("西藏"))

	// Returned slices must not alias the table
	districts := GetDistricts("广东", "深圳")
	districts[0] = "changed"
	assert.Equal(t, "南山", GetDistricts("广东", "深圳")[0])
}

func TestLoadRegions(t *testing.T) {
	t.Cleanup(restoreRegions)

	dir := t.TempDir()
	path := filepath.Join(dir, "regions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"浙江": {"杭州": ["西湖", "滨江"]}}`), 0644))

	require.NoError(t, LoadRegions(path))
	assert.Equal(t, []string{"浙江"}, GetProvinces())
	assert.Equal(t, []string{"西湖", "滨江"}, GetDistricts("浙江", "杭州"))

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{}`), 0644))
	assert.Error(t, LoadRegions(empty))
	assert.Error(t, LoadRegions(filepath.Join(dir, "missing.json")))

	// Failed loads keep the previous hierarchy
	assert.Equal(t, []string{"浙江"}, GetProvinces())
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "5250", cfg.HTTP.Port)
	assert.Equal(t, 100, cfg.Import.MaxBatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 4, cfg.Search.Workers)
}

func TestLoadConfigFromEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("HTTP_PORT=9999\nSEARCH_WORKERS=7\n"), 0644))
	t.Cleanup(func() {
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("SEARCH_WORKERS")
	})

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9999", cfg.HTTP.Port)
	assert.Equal(t, 7, cfg.Search.Workers)
}
