package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"megasap/internal/game"
	"megasap/internal/game/spatial"
	"megasap/internal/render"
)

// EngineInterface defines the engine methods used by the API.
// This interface enables mocking for tests without spinning up the tick loop.
// Keep this minimal - only include methods the API layer actually calls.
type EngineInterface interface {
	// GetSnapshot returns the latest lock-free immutable snapshot
	GetSnapshot() *game.WorldSnapshot
	// GetStats returns engine and broad phase counters
	GetStats() game.EngineStats
	// Edges returns the current edge list for debugging
	Edges() []spatial.EdgeInfo
	// SpawnDonuts adds up to n donuts; partial spawns return an error
	SpawnDonuts(n int, kind spatial.Kind) ([]int, error)
	// RemoveDonut takes a donut out of the world
	RemoveDonut(id int) error
	// SetBroadphase switches between "sap" and "bruteforce"
	SetBroadphase(mode string) error
	// RecentEvents returns the latest logged events
	RecentEvents(n int) []game.Event
}

// FrameEncoder renders a snapshot as an image.
type FrameEncoder interface {
	EncodePNG(w io.Writer, snap *game.WorldSnapshot) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
// This struct is designed for dependency injection and testability.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Engine: mockEngine,
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Engine is the simulation engine (required)
	Engine EngineInterface

	// Frames renders /api/frame.png. If nil, a default renderer is used.
	Frames FrameEncoder

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is optional configuration for the rate limiter.
	// Only used if RateLimiter is nil. If both are nil, uses DefaultRateLimitConfig.
	RateLimitConfig *RateLimitConfig

	// FrameRateLimiter is the extra per-IP limit on /api/frame.png.
	// If nil, one is created from FrameRateLimitConfig.
	FrameRateLimiter *IPRateLimiter

	// CORSOrigins is an optional list of allowed CORS origins.
	// If nil, only localhost is allowed.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool

	// MaxSpawn caps POST /api/donuts. Zero means 32.
	MaxSpawn int

	// AdminToken guards the mutating routes. Empty disables the check.
	AdminToken string
}

// routerHandlers holds the handler functions for the router.
type routerHandlers struct {
	engine   EngineInterface
	frames   FrameEncoder
	maxSpawn int
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// IMPORTANT: This function is PURE - it has no side effects:
//   - No goroutines are started
//   - No network listeners are opened
//
// This makes it safe to use in tests with httptest.NewServer.
// The one exception is the cleanup goroutine of a rate limiter created
// here; pass RateLimiter explicitly to own its lifetime.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware - Order matters!
	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	r.Use(GetRateLimiterFromRouter(cfg).Middleware)

	corsOrigins := cfg.CORSOrigins
	if corsOrigins == nil {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine:   cfg.Engine,
		frames:   cfg.Frames,
		maxSpawn: cfg.MaxSpawn,
	}
	if h.frames == nil {
		h.frames = render.NewRenderer(render.Options{})
	}
	if h.maxSpawn <= 0 {
		h.maxSpawn = 32
	}

	r.Route("/api", func(r chi.Router) {
		// Read-only views
		r.Get("/state", h.handleGetState)
		r.Get("/stats", h.handleGetStats)
		r.Get("/edges", h.handleGetEdges)
		r.Get("/events", h.handleGetEvents)
		r.With(frameRateLimiter(cfg).Middleware).Get("/frame.png", h.handleGetFrame)

		// World control
		r.Group(func(r chi.Router) {
			r.Use(RequireAdminToken(cfg.AdminToken))
			r.Post("/donuts", h.handleSpawnDonuts)
			r.Delete("/donuts/{id}", h.handleRemoveDonut)
			r.Post("/broadphase", h.handleSetBroadphase)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})

	return r
}

// GetRateLimiterFromRouter returns the limiter NewRouter would use for cfg.
// A limiter is created from RateLimitConfig when none is given.
func GetRateLimiterFromRouter(cfg RouterConfig) *IPRateLimiter {
	if cfg.RateLimiter != nil {
		return cfg.RateLimiter
	}
	rateLimitCfg := DefaultRateLimitConfig
	if cfg.RateLimitConfig != nil {
		rateLimitCfg = *cfg.RateLimitConfig
	}
	return NewIPRateLimiter(rateLimitCfg)
}

func frameRateLimiter(cfg RouterConfig) *IPRateLimiter {
	if cfg.FrameRateLimiter != nil {
		return cfg.FrameRateLimiter
	}
	return NewIPRateLimiter(FrameRateLimitConfig)
}
