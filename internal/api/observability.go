package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"megasap/internal/config"
	"megasap/internal/game"
	"megasap/internal/game/spatial"
)

// Metrics with bounded cardinality (no per-donut labels)
var (
	// Simulation metrics
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sap_tick_duration_seconds",
		Help:    "Time spent in a simulation tick",
		Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
	}, []string{"mode"}) // Bounded: "sap", "bruteforce"

	sweepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sap_sweep_duration_seconds",
		Help:    "Time spent in the broad phase pass",
		Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
	}, []string{"mode"})

	donutCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sap_donuts",
		Help: "Donuts currently alive",
	})

	pairsLastTick = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sap_pairs_last_tick",
		Help: "Pairs reported by the most recent tick",
	})

	// Broad phase metrics
	edgeCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sap_edges",
		Help: "Edges in the list, tombstones included",
	})

	tombstoneCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sap_tombstones",
		Help: "Removed edges awaiting compaction",
	})

	peakTouching = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sap_peak_touching",
		Help: "Largest active set seen during a sweep",
	})

	edgesInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_edges_inserted_total",
		Help: "Entities inserted into the edge list",
	})

	insertRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_insert_rejected_total",
		Help: "Inserts refused because the edge list was full",
	})

	sortsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_sorts_total",
		Help: "Full maintenance passes run",
	})

	sortShifts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sap_sort_shifts",
		Help:    "Element moves per insertion sort",
		Buckets: []float64{0, 1, 4, 16, 64, 256, 1024},
	})

	tombstonesPurged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_tombstones_purged_total",
		Help: "Tombstones removed by compaction",
	})

	pairsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_pairs_total",
		Help: "Pairs reported by the sweep",
	})

	touchingOverflow = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sap_touching_overflow_total",
		Help: "Entities dropped because the active set was full",
	})

	// Event log metrics
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_total",
		Help: "Total events logged",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // Bounded: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the full URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "Total WebSocket messages sent",
	}, []string{"codec"})
)

// =============================================================================
// BROAD PHASE OBSERVER
// =============================================================================

// MetricsObserver feeds broad phase diagnostics into Prometheus.
// Install it with Engine.SetObserver; every hook is a counter bump.
type MetricsObserver struct {
	spatial.NopObserver
}

func (MetricsObserver) EdgeInserted(spatial.Entity, int, int)       { edgesInserted.Inc() }
func (MetricsObserver) InsertRejected(spatial.Entity)               { insertRejected.Inc() }
func (MetricsObserver) PairDetected(spatial.Entity, spatial.Entity) { pairsTotal.Inc() }
func (MetricsObserver) TouchingOverflow(spatial.Entity)             { touchingOverflow.Inc() }

func (MetricsObserver) Sorted(s spatial.SortStats) {
	sortsTotal.Inc()
	sortShifts.Observe(float64(s.Shifts))
	tombstonesPurged.Add(float64(s.Purged))
}

// RecordTick is an Engine tick hook. It runs under the engine lock.
func RecordTick(s game.TickStats) {
	tickDuration.WithLabelValues(s.Mode).Observe(s.Duration.Seconds())
	sweepDuration.WithLabelValues(s.Mode).Observe(s.Sweep.Seconds())
	donutCount.Set(float64(s.Donuts))
	pairsLastTick.Set(float64(s.Pairs))
	edgeCount.Set(float64(s.Phase.Edges))
	tombstoneCount.Set(float64(s.Phase.Tombstones))
	peakTouching.Set(float64(s.Phase.PeakTouching))
}

// UpdateEventLogStats mirrors the event log counters.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogTotal.Set(float64(total))
	eventLogDropped.Set(float64(dropped))
}

// =============================================================================
// DEBUG SERVER
// =============================================================================

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // MUST be loopback in production
	BasicAuthUser string // Optional basic auth
	BasicAuthPass string
}

// ObservabilityFromConfig builds the debug server config from app settings.
func ObservabilityFromConfig(cfg config.DebugConfig) ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:       cfg.Enabled,
		ListenAddr:    cfg.Addr,
		BasicAuthUser: os.Getenv("DEBUG_USER"),
		BasicAuthPass: os.Getenv("DEBUG_PASS"),
	}
}

// isLoopback reports whether addr binds to a loopback interface.
func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// NewDebugMux returns the pprof, /metrics and /health handler.
func NewDebugMux() *http.ServeMux {
	mux := http.NewServeMux()

	// pprof endpoints for profiling
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	// Prometheus metrics endpoint
	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	return mux
}

// StartDebugServer starts the internal observability server
// CRITICAL: This MUST bind to localhost only to prevent pprof-based DoS
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}

	if !isLoopback(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		log.Printf("⚠️ Debug server forced to localhost for security (wanted %s)", cfg.ListenAddr)
		cfg.ListenAddr = config.DefaultDebug().Addr
	}

	var handler http.Handler = NewDebugMux()
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, handler)
	}

	go func() {
		log.Printf("📊 Debug server starting on %s", cfg.ListenAddr)
		log.Printf("   - pprof:   http://%s/debug/pprof/", cfg.ListenAddr)
		log.Printf("   - metrics: http://%s/metrics", cfg.ListenAddr)

		if err := http.ListenAndServe(cfg.ListenAddr, handler); err != nil {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()

	return nil
}

// basicAuthMiddleware adds basic authentication to the handler
func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// HTTP / WEBSOCKET HELPERS
// =============================================================================

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "auth", "ws_total_limit", "ws_ip_limit"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
}

// requestMetrics records latency per chi route pattern.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				endpoint = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}

// UpdateWSConnections updates WebSocket connection count
func UpdateWSConnections(count int) {
	wsConnectionsActive.Set(float64(count))
}

// IncrementWSMessages increments the WebSocket message counter for a codec
func IncrementWSMessages(codec string) {
	wsMessagesTotal.WithLabelValues(codec).Inc()
}
