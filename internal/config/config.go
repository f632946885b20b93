// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for broad-phase sizing and demo settings.
//
// IMPORTANT: When changing values, only modify this file.
// All other parts of the codebase should reference these values.
package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"megasap/internal/game/spatial"
)

// =============================================================================
// BROAD PHASE CONFIGURATION
// =============================================================================

// BroadphaseConfig sizes the sweep-and-prune storage.
type BroadphaseConfig struct {
	MaxEdges      int    // Edge capacity (2 per entity)
	MaxTouching   int    // Entities simultaneously open on X during a sweep
	SortFrequency int    // Sweeps between full sorts
	InsertMode    string // "sorted" or "append"
}

// DefaultBroadphase returns the reference budget: 36 entities, 12 touching.
func DefaultBroadphase() BroadphaseConfig {
	d := spatial.DefaultConfig()
	return BroadphaseConfig{
		MaxEdges:      d.MaxEdges,
		MaxTouching:   d.MaxTouching,
		SortFrequency: d.SortFrequency,
		InsertMode:    d.Insert.String(),
	}
}

// BroadphaseFromEnv returns broad-phase configuration with environment overrides.
func BroadphaseFromEnv() BroadphaseConfig {
	cfg := DefaultBroadphase()

	if v := getEnvInt("SAP_MAX_EDGES", 0); v > 0 {
		cfg.MaxEdges = v
	}
	if v := getEnvInt("SAP_MAX_TOUCHING", 0); v > 0 {
		cfg.MaxTouching = v
	}
	if v := getEnvInt("SAP_SORT_FREQUENCY", 0); v > 0 {
		cfg.SortFrequency = v
	}
	if v := os.Getenv("SAP_INSERT_MODE"); v != "" {
		cfg.InsertMode = v
	}

	return cfg
}

// Spatial converts to the engine config, validating it.
func (c BroadphaseConfig) Spatial() (spatial.Config, error) {
	mode, err := spatial.ParseInsertStrategy(c.InsertMode)
	if err != nil {
		return spatial.Config{}, err
	}
	cfg := spatial.Config{
		MaxEdges:      c.MaxEdges,
		MaxTouching:   c.MaxTouching,
		SortFrequency: c.SortFrequency,
		Insert:        mode,
	}
	if err := cfg.Validate(); err != nil {
		return spatial.Config{}, err
	}
	if cfg.SortMayDrift() {
		log.Printf("⚠️ SAP_SORT_FREQUENCY=%d is above %d: pairs will be missed between sorts",
			cfg.SortFrequency, spatial.DriftSortFrequency)
	}
	return cfg, nil
}

// =============================================================================
// DEMO WORLD CONFIGURATION
// =============================================================================

// Broad phase modes accepted by DemoConfig.Broadphase.
const (
	ModeSAP        = "sap"
	ModeBruteForce = "bruteforce"
)

// DemoConfig holds the bouncing-donut simulation settings.
type DemoConfig struct {
	Width        int    // Playfield width in pixels
	Height       int    // Playfield height in pixels
	TickRate     int    // Ticks per second
	Entities     int    // Donuts spawned at startup
	BoxSize      int    // Donut size in pixels (square)
	Broadphase   string // "sap" or "bruteforce"
	DestroyOnHit bool   // Collidable donuts destroy the static ones they hit
	RespawnTicks int    // Ticks before a destroyed donut comes back
	Seed         int64  // RNG seed for the scene
}

// DefaultDemo returns the reference scene: 40 donuts on a 320x224 screen.
// 40 exceeds the default capacity on purpose, the last four are rejected.
func DefaultDemo() DemoConfig {
	return DemoConfig{
		Width:        320,
		Height:       224,
		TickRate:     60,
		Entities:     40,
		BoxSize:      16,
		Broadphase:   ModeSAP,
		DestroyOnHit: false,
		RespawnTicks: 120,
		Seed:         1,
	}
}

// DemoFromEnv returns demo configuration with environment overrides.
func DemoFromEnv() DemoConfig {
	cfg := DefaultDemo()

	if v := getEnvInt("DEMO_WIDTH", 0); v > 0 {
		cfg.Width = v
	}
	if v := getEnvInt("DEMO_HEIGHT", 0); v > 0 {
		cfg.Height = v
	}
	if v := getEnvInt("DEMO_TPS", 0); v > 0 {
		cfg.TickRate = v
	}
	if v := getEnvInt("DEMO_ENTITIES", -1); v >= 0 {
		cfg.Entities = v
	}
	if v := getEnvInt("DEMO_BOX_SIZE", 0); v > 0 {
		cfg.BoxSize = v
	}
	if v := os.Getenv("DEMO_BROADPHASE"); v != "" {
		cfg.Broadphase = strings.ToLower(v)
	}
	cfg.DestroyOnHit = getEnvBool("DEMO_DESTROY_ON_HIT", cfg.DestroyOnHit)
	if v := getEnvInt("DEMO_RESPAWN_TICKS", 0); v > 0 {
		cfg.RespawnTicks = v
	}
	if v := getEnvInt("DEMO_SEED", 0); v != 0 {
		cfg.Seed = int64(v)
	}

	return cfg
}

// Validate checks the playfield fits the 16-bit coordinate space.
func (c DemoConfig) Validate() error {
	if c.Width <= c.BoxSize || c.Height <= c.BoxSize {
		return fmt.Errorf("playfield %dx%d too small for box size %d", c.Width, c.Height, c.BoxSize)
	}
	if c.Width > 65535 || c.Height > 65535 {
		return fmt.Errorf("playfield %dx%d exceeds 16-bit coordinates", c.Width, c.Height)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("tick rate must be positive, got %d", c.TickRate)
	}
	if c.Broadphase != ModeSAP && c.Broadphase != ModeBruteForce {
		return fmt.Errorf("unknown broad phase %q (want %s or %s)", c.Broadphase, ModeSAP, ModeBruteForce)
	}
	return nil
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         int
	MaxSpawn     int    // Max donuts per POST /api/donuts
	EventLogPath string // JSONL event log, empty keeps events in memory
	AdminToken   string // Bearer token for mutating routes, empty disables the check
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:     3000,
		MaxSpawn: 32,
	}
}

// ServerFromEnv returns server configuration with environment overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if v := getEnvInt("MAX_SPAWN", 0); v > 0 {
		cfg.MaxSpawn = v
	}
	cfg.EventLogPath = os.Getenv("EVENT_LOG_PATH")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")

	return cfg
}

// =============================================================================
// DEBUG SERVER CONFIGURATION
// =============================================================================

// DebugConfig controls the localhost pprof/metrics server.
type DebugConfig struct {
	Enabled bool
	Addr    string
}

// DefaultDebug returns the default debug server configuration.
func DefaultDebug() DebugConfig {
	return DebugConfig{
		Enabled: true,
		Addr:    "127.0.0.1:6060",
	}
}

// DebugFromEnv returns debug configuration with environment overrides.
func DebugFromEnv() DebugConfig {
	cfg := DefaultDebug()

	if getEnvBool("DISABLE_DEBUG_SERVER", false) {
		cfg.Enabled = false
	}
	if v := os.Getenv("DEBUG_ADDR"); v != "" {
		cfg.Addr = v
	}

	return cfg
}

// =============================================================================
// STORAGE CONFIGURATION
// =============================================================================

// StorageConfig locates the benchmark results database.
type StorageConfig struct {
	BenchDBPath string
}

// DefaultStorage returns the default storage configuration.
func DefaultStorage() StorageConfig {
	return StorageConfig{BenchDBPath: "bench.db"}
}

// StorageFromEnv returns storage configuration with environment overrides.
func StorageFromEnv() StorageConfig {
	cfg := DefaultStorage()
	if v := os.Getenv("BENCH_DB_PATH"); v != "" {
		cfg.BenchDBPath = v
	}
	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Broadphase BroadphaseConfig
	Demo       DemoConfig
	Server     ServerConfig
	Debug      DebugConfig
	Storage    StorageConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Broadphase: BroadphaseFromEnv(),
		Demo:       DemoFromEnv(),
		Server:     ServerFromEnv(),
		Debug:      DebugFromEnv(),
		Storage:    StorageFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}
