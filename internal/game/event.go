package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown  EventType = iota
	EventTypeTick               // Tick boundary with RNG seed
	EventTypeCollision          // Pair reported by the broad phase
	EventTypeSpawn              // Donut inserted (or re-inserted after respawn)
	EventTypeDespawn            // Donut removed or destroyed on hit
	EventTypeOverflow           // Active set full during a sweep
	EventTypeReject             // Insert refused, edge list full
	eventTypeCount
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`
	TickNum   uint64          `json:"tickNum"`
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeTick:
		return "tick"
	case EventTypeCollision:
		return "collision"
	case EventTypeSpawn:
		return "spawn"
	case EventTypeDespawn:
		return "despawn"
	case EventTypeOverflow:
		return "overflow"
	case EventTypeReject:
		return "reject"
	default:
		return "unknown"
	}
}

// MarshalText renders the type by name in JSON output.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// TickPayload contains tick boundary information for replay
type TickPayload struct {
	Seed      int64  `json:"seed"`
	Mode      string `json:"mode"`
	Donuts    int    `json:"donuts"`
	Pairs     int    `json:"pairs"`
	SweepNs   int64  `json:"sweepNs"`
	SortShift int    `json:"sortShifts,omitempty"`
}

// CollisionPayload identifies the two donuts of a pair.
type CollisionPayload struct {
	A int `json:"a"`
	B int `json:"b"`
}

// SpawnPayload describes where a donut entered the playfield.
type SpawnPayload struct {
	ID      int    `json:"id"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Kind    string `json:"kind"`
	Respawn bool   `json:"respawn,omitempty"`
}

// DespawnPayload records why a donut left the broad phase.
type DespawnPayload struct {
	ID     int    `json:"id"`
	Reason string `json:"reason"` // "removed" or "destroyed"
}

// OverflowPayload reports a sweep that dropped entities.
type OverflowPayload struct {
	Dropped  uint64 `json:"dropped"`
	Capacity int    `json:"capacity"`
}

// RejectPayload reports a donut the edge list had no room for.
type RejectPayload struct {
	ID       int `json:"id"`
	Capacity int `json:"capacity"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, tickNum uint64, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		TickNum:   tickNum,
		Payload:   EncodePayload(payload),
	}
}
