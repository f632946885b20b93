package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/vmihailenco/msgpack/v5"

	"megasap/internal/game"
	"megasap/internal/game/spatial"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Handler methods for routerHandlers
// These are used by both the standalone router (for testing) and the full Server.

// handleGetState serves the latest snapshot. ?format=msgpack switches the
// body to MessagePack.
func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetSnapshot()
	if snap == nil {
		writeError(w, "No snapshot yet", http.StatusServiceUnavailable)
		return
	}

	if wantsMsgpack(r) {
		writeMsgpack(w, snap)
		return
	}
	writeJSON(w, snap)
}

func (h *routerHandlers) handleGetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.engine.GetStats())
}

func (h *routerHandlers) handleGetEdges(w http.ResponseWriter, r *http.Request) {
	edges := h.engine.Edges()
	writeJSON(w, map[string]interface{}{
		"count": len(edges),
		"edges": edges,
	})
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(n, maxEventLimit)
	}

	events := h.engine.RecentEvents(limit)
	if events == nil {
		events = []game.Event{}
	}
	writeJSON(w, events)
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	snap := h.engine.GetSnapshot()
	if snap == nil {
		writeError(w, "No snapshot yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.frames.EncodePNG(w, snap); err != nil {
		log.Printf("⚠️ Frame encode failed: %v", err)
	}
}

func (h *routerHandlers) handleSpawnDonuts(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Count int    `json:"count"`
		Kind  string `json:"kind"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	if req.Count <= 0 {
		req.Count = 1
	}
	if req.Count > h.maxSpawn {
		req.Count = h.maxSpawn // Cap
	}

	kind, ok := parseKind(req.Kind)
	if !ok {
		writeError(w, `kind must be "static" or "collidable"`, http.StatusBadRequest)
		return
	}

	ids, err := h.engine.SpawnDonuts(req.Count, kind)
	if err != nil && !errors.Is(err, spatial.ErrCapacityExhausted) {
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if err != nil {
		// Partial spawns still report what made it in.
		status = http.StatusInsufficientStorage
		if len(ids) == 0 {
			writeError(w, err.Error(), status)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"requested": req.Count,
		"spawned":   len(ids),
		"ids":       ids,
	})
}

func (h *routerHandlers) handleRemoveDonut(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id < 0 {
		writeError(w, "Invalid donut id", http.StatusBadRequest)
		return
	}

	if err := h.engine.RemoveDonut(id); err != nil {
		if errors.Is(err, game.ErrDonutNotFound) {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"success": true, "id": id})
}

func (h *routerHandlers) handleSetBroadphase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	mode := strings.ToLower(strings.TrimSpace(req.Mode))
	if err := h.engine.SetBroadphase(mode); err != nil {
		if errors.Is(err, game.ErrUnknownMode) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		writeError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	log.Printf("🔀 Broad phase set to %s via API", mode)
	writeJSON(w, map[string]interface{}{"success": true, "mode": mode})
}

// parseKind maps the request kind, defaulting to static.
func parseKind(s string) (spatial.Kind, bool) {
	switch strings.ToLower(s) {
	case "", "static":
		return spatial.KindStatic, true
	case "collidable":
		return spatial.KindCollidable, true
	}
	return spatial.KindStatic, false
}

// Helper functions (package-level for reuse)

func wantsMsgpack(r *http.Request) bool {
	if r.URL.Query().Get("format") == "msgpack" {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/msgpack")
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeMsgpack(w http.ResponseWriter, data interface{}) {
	b, err := msgpack.Marshal(data)
	if err != nil {
		writeError(w, "Encoding failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.Write(b)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
