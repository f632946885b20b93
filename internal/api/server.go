package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"megasap/internal/config"
	"megasap/internal/render"
)

// Server is the HTTP API server with WebSocket support.
// It combines the HTTP router with the WebSocket hub for live snapshots.
type Server struct {
	engine      EngineInterface
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	frameLimit  *IPRateLimiter
	httpServer  *http.Server
}

// NewServer creates a new API server.
//
// IMPORTANT: Background workers do NOT start until Start() is called.
// For testing HTTP endpoints without WebSocket support, use NewRouter() directly.
func NewServer(engine EngineInterface, cfg config.ServerConfig) *Server {
	s := &Server{
		engine:      engine,
		wsHub:       NewWebSocketHub(),
		rateLimiter: NewIPRateLimiter(DefaultRateLimitConfig),
		frameLimit:  NewIPRateLimiter(FrameRateLimitConfig),
	}

	s.router = NewRouter(RouterConfig{
		Engine:           engine,
		Frames:           render.NewRenderer(render.Options{Scale: 2, ShowBounds: true}),
		RateLimiter:      s.rateLimiter,
		FrameRateLimiter: s.frameLimit,
		MaxSpawn:         cfg.MaxSpawn,
		AdminToken:       cfg.AdminToken,
	})

	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds WebSocket-specific routes to the router.
// These routes need the wsHub instance, so they are not part of NewRouter.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.handleWS)
}

// Start begins the HTTP server AND starts background workers.
// It blocks until the listener fails or Shutdown is called.
func (s *Server) Start(addr string) error {
	go s.wsHub.Run()
	s.wsHub.StartBroadcastLoop(s.engine)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🖼️  Frame: http://localhost%s/api/frame.png", addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests and then stops the background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.Stop()
	return err
}

// Stop performs shutdown of background workers.
func (s *Server) Stop() {
	s.wsHub.Stop()
	s.rateLimiter.Stop()
	s.frameLimit.Stop()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.wsHub.HandleWebSocket(w, r)
}
