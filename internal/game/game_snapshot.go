package game

import (
	"time"

	"megasap/internal/game/spatial"
)

// DonutSnapshot is an immutable copy of a donut for rendering.
// Uses value types (not pointers) so readers never race the tick.
type DonutSnapshot struct {
	ID    int    `json:"id" msgpack:"id"`
	X     int    `json:"x" msgpack:"x"`
	Y     int    `json:"y" msgpack:"y"`
	Size  int    `json:"size" msgpack:"size"`
	MoveX int    `json:"moveX" msgpack:"moveX"`
	MoveY int    `json:"moveY" msgpack:"moveY"`
	Kind  string `json:"kind" msgpack:"kind"`
	Hits  int    `json:"hits" msgpack:"hits"`
}

// PairSnapshot is one pair reported during the tick.
type PairSnapshot struct {
	A int `json:"a" msgpack:"a"`
	B int `json:"b" msgpack:"b"`
}

// WorldSnapshot is a complete immutable world state, published once per
// tick. Readers get it through Engine.GetSnapshot without taking the lock.
type WorldSnapshot struct {
	Sequence  uint64    `json:"sequence" msgpack:"sequence"`
	Timestamp time.Time `json:"timestamp" msgpack:"timestamp"`
	Tick      uint64    `json:"tick" msgpack:"tick"`
	Mode      string    `json:"mode" msgpack:"mode"`

	Width  int `json:"width" msgpack:"width"`
	Height int `json:"height" msgpack:"height"`

	Donuts []DonutSnapshot `json:"donuts" msgpack:"donuts"`
	Pairs  []PairSnapshot  `json:"pairs" msgpack:"pairs"`

	// Aggregate stats
	DonutCount     int    `json:"donutCount" msgpack:"donutCount"`
	PendingRespawn int    `json:"pendingRespawn" msgpack:"pendingRespawn"`
	TotalPairs     uint64 `json:"totalPairs" msgpack:"totalPairs"`
	SweepNs        int64  `json:"sweepNs" msgpack:"sweepNs"`
	TickNs         int64  `json:"tickNs" msgpack:"tickNs"`
}

// EngineStats is the monitoring view returned by Engine.GetStats.
type EngineStats struct {
	Tick           uint64                 `json:"tick"`
	Mode           string                 `json:"mode"`
	TickRate       int                    `json:"tickRate"`
	Donuts         int                    `json:"donuts"`
	PendingRespawn int                    `json:"pendingRespawn"`
	Rejected       uint64                 `json:"rejected"`
	Destroyed      uint64                 `json:"destroyed"`
	TotalPairs     uint64                 `json:"totalPairs"`
	AuditedPairs   uint64                 `json:"auditedPairs,omitempty"`
	MissedPairs    uint64                 `json:"missedPairs,omitempty"`
	LastPairs      int                    `json:"lastPairs"`
	SweepNs        int64                  `json:"sweepNs"`
	TickNs         int64                  `json:"tickNs"`
	Broadphase     spatial.Stats          `json:"broadphase"`
	EventLog       map[string]interface{} `json:"eventLog"`
}

// TickStats is handed to the tick hook after every tick.
type TickStats struct {
	Tick     uint64
	Mode     string
	Donuts   int
	Pairs    int
	Duration time.Duration
	Sweep    time.Duration
	Overflow bool
	Phase    spatial.Stats
}
