package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"megasap/internal/game/spatial"
)

func TestDefaultsMatchEngine(t *testing.T) {
	cfg, err := DefaultBroadphase().Spatial()
	require.NoError(t, err)
	assert.Equal(t, spatial.DefaultConfig(), cfg)
	assert.NoError(t, DefaultDemo().Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SAP_MAX_EDGES", "128")
	t.Setenv("SAP_MAX_TOUCHING", "20")
	t.Setenv("SAP_SORT_FREQUENCY", "4")
	t.Setenv("SAP_INSERT_MODE", "append")
	t.Setenv("DEMO_ENTITIES", "0")
	t.Setenv("DEMO_BROADPHASE", "BruteForce")
	t.Setenv("DEMO_DESTROY_ON_HIT", "true")
	t.Setenv("DEMO_SEED", "99")
	t.Setenv("PORT", "8080")
	t.Setenv("DISABLE_DEBUG_SERVER", "1")
	t.Setenv("BENCH_DB_PATH", "/tmp/runs.db")

	cfg := Load()

	sp, err := cfg.Broadphase.Spatial()
	require.NoError(t, err)
	assert.Equal(t, spatial.Config{MaxEdges: 128, MaxTouching: 20, SortFrequency: 4, Insert: spatial.InsertAppend}, sp)

	assert.Equal(t, 0, cfg.Demo.Entities)
	assert.Equal(t, ModeBruteForce, cfg.Demo.Broadphase)
	assert.True(t, cfg.Demo.DestroyOnHit)
	assert.Equal(t, int64(99), cfg.Demo.Seed)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.False(t, cfg.Debug.Enabled)
	assert.Equal(t, "/tmp/runs.db", cfg.Storage.BenchDBPath)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("SAP_MAX_EDGES", "lots")
	t.Setenv("DEMO_DESTROY_ON_HIT", "maybe")

	cfg := Load()
	assert.Equal(t, 72, cfg.Broadphase.MaxEdges)
	assert.False(t, cfg.Demo.DestroyOnHit)
}

func TestBroadphaseSpatialRejects(t *testing.T) {
	tests := []struct {
		name string
		cfg  BroadphaseConfig
	}{
		{"odd edges", BroadphaseConfig{MaxEdges: 9, MaxTouching: 4, SortFrequency: 1}},
		{"bad mode", BroadphaseConfig{MaxEdges: 8, MaxTouching: 4, SortFrequency: 1, InsertMode: "heap"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Spatial()
			assert.ErrorIs(t, err, spatial.ErrInvalidConfig)
		})
	}
}

func TestDemoValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DemoConfig)
	}{
		{"box too big", func(c *DemoConfig) { c.BoxSize = 400 }},
		{"too wide", func(c *DemoConfig) { c.Width = 70000 }},
		{"no ticks", func(c *DemoConfig) { c.TickRate = 0 }},
		{"unknown mode", func(c *DemoConfig) { c.Broadphase = "grid" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDemo()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
