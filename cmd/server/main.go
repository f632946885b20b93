package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"megasap/internal/api"
	"megasap/internal/config"
	"megasap/internal/game"
	"megasap/internal/game/spatial"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🍩 ================================")
	log.Println("🍩  MEGA SAP - BROAD PHASE DEMO")
	log.Println("🍩 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	demoCfg := appConfig.Demo
	serverCfg := appConfig.Server

	sapCfg, err := appConfig.Broadphase.Spatial()
	if err != nil {
		log.Fatalf("❌ Invalid broad phase config: %v", err)
	}
	log.Printf("📐 Broad phase: %d edges (%d entities), %d touching, sort every %d sweep(s), %s insert",
		sapCfg.MaxEdges, sapCfg.MaxEdges/2, sapCfg.MaxTouching, sapCfg.SortFrequency, sapCfg.Insert)
	log.Printf("🎮 Demo: %dx%d, %d TPS, %d donuts, mode=%s, seed=%d",
		demoCfg.Width, demoCfg.Height, demoCfg.TickRate, demoCfg.Entities, demoCfg.Broadphase, demoCfg.Seed)

	engine, err := game.NewEngine(game.EngineConfig{
		Demo:       demoCfg,
		Broadphase: sapCfg,
	})
	if err != nil {
		log.Fatalf("❌ Engine init failed: %v", err)
	}

	// Metrics, plus per-pair logging when asked for
	var observer spatial.Observer = api.MetricsObserver{}
	if os.Getenv("SAP_TRACE") == "true" {
		observer = spatial.MultiObserver{observer, spatial.LogObserver{LogPairs: true}}
		log.Println("🔎 Broad phase tracing enabled")
	}
	engine.SetObserver(observer)
	engine.SetTickHook(api.RecordTick)

	// Start event log
	if err := engine.StartEventLog(serverCfg.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	} else if serverCfg.EventLogPath != "" {
		log.Printf("📝 Event log: %s", serverCfg.EventLogPath)
	}

	// Start debug server
	if err := api.StartDebugServer(api.ObservabilityFromConfig(appConfig.Debug)); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	if serverCfg.AdminToken == "" {
		log.Println("⚠️ Admin token not set - world control routes are open (set ADMIN_TOKEN)")
	}

	server := api.NewServer(engine, serverCfg)

	engine.Start()
	log.Println("✅ Engine started")

	go func() {
		addr := ":" + strconv.Itoa(serverCfg.Port)
		if err := server.Start(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	stopStats := make(chan struct{})
	go pollEventLogStats(engine, stopStats)

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	close(stopStats)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}

	engine.Stop()
	engine.StopEventLog()

	stats := engine.GetStats()
	log.Printf("📊 %d ticks, %d pairs, %d rejected inserts, %d overflows",
		stats.Tick, stats.TotalPairs, stats.Rejected, stats.Broadphase.TouchingOverflows)
	log.Println("👋 Goodbye!")
}

// pollEventLogStats mirrors the event log counters into Prometheus.
func pollEventLogStats(engine *game.Engine, stop <-chan struct{}) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			api.UpdateEventLogStats(engine.EventLogCounts())
		}
	}
}
