package game

import (
	"errors"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"megasap/internal/config"
	"megasap/internal/game/spatial"
)

var (
	// ErrDonutNotFound is returned when an ID matches no donut.
	ErrDonutNotFound = errors.New("donut not found")
	// ErrUnknownMode is returned for a broad phase name other than sap or bruteforce.
	ErrUnknownMode = errors.New("unknown broad phase mode")
)

// spawnLattice is the grid spawn positions snap to.
const spawnLattice = 16

// EngineConfig holds everything NewEngine needs.
type EngineConfig struct {
	Demo       config.DemoConfig
	Broadphase spatial.Config

	// Audit recounts every SAP tick by brute force and tracks the pairs the
	// sweep missed because of a throttled sort.
	Audit bool
}

// DefaultEngineConfig returns the reference scene with the reference budget.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Demo:       config.DefaultDemo(),
		Broadphase: spatial.DefaultConfig(),
	}
}

// Engine runs the bouncing-donut world: it moves every donut, runs the
// selected broad phase and applies the collision response once per tick.
type Engine struct {
	mu  sync.RWMutex
	cfg config.DemoConfig

	// Sweep-and-prune tracks every live donut in both modes, so switching
	// modes never re-inserts anything.
	sap  *spatial.SweepAndPrune
	mode string

	donuts       []*Donut // ordered by ID
	live         []spatial.Entity
	respawnQueue []*Donut
	pairs        []PairSnapshot
	nextID       int

	maxX, maxY int

	tickRate int
	running  bool
	ticker   *time.Ticker
	stopChan chan struct{}

	// Stats
	tickCount  uint64
	totalPairs uint64
	rejected   uint64
	destroyed  uint64
	lastSweep  time.Duration
	lastTick   time.Duration

	// Deterministic RNG for replay consistency
	rng  *rand.Rand
	seed int64

	snapshot atomic.Pointer[WorldSnapshot]
	sequence uint64

	eventLog *EventLog
	onTick   func(TickStats)

	audit        bool
	auditedPairs uint64
	missedPairs  uint64
}

// NewEngine builds the world and spawns the initial scene. Donuts that do
// not fit in the edge list are rejected and logged, the engine still starts.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.Demo.Validate(); err != nil {
		return nil, fmt.Errorf("demo config: %w", err)
	}
	sap, err := spatial.New(cfg.Broadphase, nil)
	if err != nil {
		return nil, fmt.Errorf("broad phase: %w", err)
	}

	e := &Engine{
		cfg:      cfg.Demo,
		sap:      sap,
		mode:     cfg.Demo.Broadphase,
		donuts:   make([]*Donut, 0, cfg.Broadphase.MaxEdges/2),
		live:     make([]spatial.Entity, 0, cfg.Broadphase.MaxEdges/2),
		pairs:    make([]PairSnapshot, 0, cfg.Broadphase.MaxTouching*4),
		maxX:     cfg.Demo.Width - cfg.Demo.BoxSize,
		maxY:     cfg.Demo.Height - cfg.Demo.BoxSize,
		tickRate: cfg.Demo.TickRate,
		rng:      rand.New(rand.NewSource(cfg.Demo.Seed)),
		seed:     cfg.Demo.Seed,
		eventLog: NewEventLog(),
		audit:    cfg.Audit,
	}
	sap.SetHandler(e.handlePair)

	e.spawnScene(cfg.Demo.Entities)
	e.produceSnapshot()
	return e, nil
}

// spawnScene places the reference scene: donut 0 is the only collidable
// one and moves right; every other donut drifts randomly.
func (e *Engine) spawnScene(n int) {
	rejected := 0
	for i := 0; i < n; i++ {
		kind, mx, my := spatial.KindStatic, e.randVelocity(), e.randVelocity()
		if i == 0 {
			kind, mx, my = spatial.KindCollidable, 2, 0
		}
		if _, err := e.spawnLocked(kind, mx, my); err != nil {
			rejected++
		}
	}
	if rejected > 0 {
		log.Printf("⚠️ Edge list full: %d of %d donuts rejected (capacity %d)", rejected, n, e.sap.Cap()/2)
	}
	log.Printf("🍩 Scene ready: %d donuts on %dx%d", len(e.donuts), e.cfg.Width, e.cfg.Height)
}

// randVelocity returns -2, -1, 1 or 2.
func (e *Engine) randVelocity() int {
	v := e.rng.Intn(2) + 1
	if e.rng.Intn(2) == 0 {
		v = -v
	}
	return v
}

// spawnPosition picks a lattice point in the top-left part of the playfield.
func (e *Engine) spawnPosition() (int, int) {
	cols := min(15, e.maxX/spawnLattice+1)
	rows := min(10, e.maxY/spawnLattice+1)
	return e.rng.Intn(cols) * spawnLattice, e.rng.Intn(rows) * spawnLattice
}

// spawnLocked creates a donut and inserts it into the broad phase.
// Caller must hold e.mu.
func (e *Engine) spawnLocked(kind spatial.Kind, moveX, moveY int) (*Donut, error) {
	x, y := e.spawnPosition()
	d := NewDonut(e.nextID, x, y, e.cfg.BoxSize, kind, moveX, moveY)

	if err := e.sap.Insert(d); err != nil {
		e.rejected++
		e.eventLog.EmitSimple(EventTypeReject, e.tickCount, RejectPayload{ID: d.ID, Capacity: e.sap.Cap() / 2})
		return nil, err
	}

	e.nextID++
	e.donuts = append(e.donuts, d)
	e.eventLog.EmitSimple(EventTypeSpawn, e.tickCount,
		SpawnPayload{ID: d.ID, X: d.X, Y: d.Y, Kind: kind.String()})
	return d, nil
}

// Start begins the game loop. A stopped engine can be started again.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	e.running = true
	ticker := time.NewTicker(time.Second / time.Duration(e.tickRate))
	stop := make(chan struct{})
	e.ticker = ticker
	e.stopChan = stop
	mode := e.mode
	e.mu.Unlock()

	go func() {
		for {
			select {
			case <-ticker.C:
				e.tick()
			case <-stop:
				return
			}
		}
	}()

	log.Printf("🎮 Engine started at %d TPS (%s)", e.tickRate, mode)
}

// Stop stops the game loop
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.running {
		return
	}

	e.running = false
	e.ticker.Stop()
	close(e.stopChan)
	e.ticker = nil
	e.stopChan = nil
	log.Println("🛑 Engine stopped")
}

// Step advances the world by one tick synchronously. Used by headless runs
// and tests; do not mix with Start.
func (e *Engine) Step() {
	e.tick()
}

// tick is called at tickRate times per second
func (e *Engine) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	e.tickCount++

	e.respawnDue()

	for _, d := range e.donuts {
		if d.alive {
			d.step(e.maxX, e.maxY)
		}
	}

	e.pairs = e.pairs[:0]
	before := e.sap.Stats()
	overflow := false

	sweepStart := time.Now()
	switch e.mode {
	case config.ModeBruteForce:
		e.live = e.live[:0]
		for _, d := range e.donuts {
			if d.alive {
				e.live = append(e.live, d)
			}
		}
		spatial.BruteForce(e.live, e.handlePair)
	default:
		if err := e.sap.Sweep(); err != nil {
			overflow = errors.Is(err, spatial.ErrTouchingOverflow)
			if !overflow {
				log.Printf("⚠️ Sweep failed: %v", err)
			}
		}
	}
	e.lastSweep = time.Since(sweepStart)

	if e.audit && e.mode != config.ModeBruteForce {
		e.auditPairs()
	}

	after := e.sap.Stats()
	if overflow {
		e.eventLog.EmitSimple(EventTypeOverflow, e.tickCount, OverflowPayload{
			Dropped:  after.TouchingOverflows - before.TouchingOverflows,
			Capacity: e.sap.Config().MaxTouching,
		})
	}

	e.totalPairs += uint64(len(e.pairs))
	e.eventLog.EmitSimple(EventTypeTick, e.tickCount, TickPayload{
		Seed:    e.seed,
		Mode:    e.mode,
		Donuts:  e.aliveCount(),
		Pairs:   len(e.pairs),
		SweepNs: e.lastSweep.Nanoseconds(),
	})

	e.lastTick = time.Since(start)
	e.produceSnapshot()

	if e.onTick != nil {
		e.onTick(TickStats{
			Tick:     e.tickCount,
			Mode:     e.mode,
			Donuts:   e.aliveCount(),
			Pairs:    len(e.pairs),
			Duration: e.lastTick,
			Sweep:    e.lastSweep,
			Overflow: overflow,
			Phase:    after,
		})
	}
}

// auditPairs counts the pairs brute force finds on the post-sweep world.
// The collision response only flips velocities, so positions match what
// the sweep saw. Caller must hold e.mu.
func (e *Engine) auditPairs() {
	e.live = e.live[:0]
	for _, d := range e.donuts {
		if d.alive {
			e.live = append(e.live, d)
		}
	}
	want := spatial.BruteForce(e.live, nil)
	e.auditedPairs += uint64(want)
	if got := len(e.pairs); got < want {
		e.missedPairs += uint64(want - got)
	}
}

// handlePair is the collision response, called synchronously by the broad
// phase for every overlapping pair.
func (e *Engine) handlePair(a, b spatial.Entity) {
	da, db := a.(*Donut), b.(*Donut)
	// Brute force keeps iterating over donuts destroyed earlier in the pass.
	if !da.alive || !db.alive {
		return
	}

	e.pairs = append(e.pairs, PairSnapshot{A: da.ID, B: db.ID})
	da.rebound()
	db.rebound()
	e.eventLog.EmitSimple(EventTypeCollision, e.tickCount, CollisionPayload{A: da.ID, B: db.ID})

	if !e.cfg.DestroyOnHit {
		return
	}
	switch {
	case da.kind == spatial.KindCollidable && db.kind == spatial.KindStatic:
		e.destroy(db)
	case db.kind == spatial.KindCollidable && da.kind == spatial.KindStatic:
		e.destroy(da)
	}
}

// destroy takes a donut off the playfield until its respawn tick. Safe
// during a sweep.
func (e *Engine) destroy(d *Donut) {
	d.alive = false
	d.respawnAt = e.tickCount + uint64(e.cfg.RespawnTicks)
	e.sap.Remove(d)
	e.respawnQueue = append(e.respawnQueue, d)
	e.destroyed++
	e.eventLog.EmitSimple(EventTypeDespawn, e.tickCount, DespawnPayload{ID: d.ID, Reason: "destroyed"})
}

// respawnDue re-inserts destroyed donuts whose delay has elapsed. A donut
// that finds the edge list full waits another full delay.
func (e *Engine) respawnDue() {
	n := 0
	for _, d := range e.respawnQueue {
		if d.respawnAt > e.tickCount {
			e.respawnQueue[n] = d
			n++
			continue
		}

		d.X, d.Y = e.spawnPosition()
		d.refresh()
		if err := e.sap.Insert(d); err != nil {
			e.rejected++
			e.eventLog.EmitSimple(EventTypeReject, e.tickCount, RejectPayload{ID: d.ID, Capacity: e.sap.Cap() / 2})
			d.respawnAt = e.tickCount + uint64(e.cfg.RespawnTicks)
			e.respawnQueue[n] = d
			n++
			continue
		}
		d.alive = true
		e.eventLog.EmitSimple(EventTypeSpawn, e.tickCount,
			SpawnPayload{ID: d.ID, X: d.X, Y: d.Y, Kind: d.kind.String(), Respawn: true})
	}
	clear(e.respawnQueue[n:])
	e.respawnQueue = e.respawnQueue[:n]
}

func (e *Engine) aliveCount() int {
	n := 0
	for _, d := range e.donuts {
		if d.alive {
			n++
		}
	}
	return n
}

// SpawnDonuts adds n donuts of the given kind at random lattice positions.
// It stops at the first rejection and returns the IDs spawned so far with
// an error wrapping spatial.ErrCapacityExhausted.
func (e *Engine) SpawnDonuts(n int, kind spatial.Kind) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ids := make([]int, 0, n)
	for i := 0; i < n; i++ {
		mx, my := e.randVelocity(), e.randVelocity()
		d, err := e.spawnLocked(kind, mx, my)
		if err != nil {
			return ids, fmt.Errorf("spawned %d of %d: %w", len(ids), n, err)
		}
		ids = append(ids, d.ID)
	}
	log.Printf("🍩 Spawned %d %s donuts", len(ids), kind)
	return ids, nil
}

// RemoveDonut takes a donut out of the world for good.
func (e *Engine) RemoveDonut(id int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := -1
	for i, d := range e.donuts {
		if d.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %d", ErrDonutNotFound, id)
	}

	d := e.donuts[idx]
	e.sap.Remove(d)
	copy(e.donuts[idx:], e.donuts[idx+1:])
	e.donuts[len(e.donuts)-1] = nil
	e.donuts = e.donuts[:len(e.donuts)-1]

	for i, q := range e.respawnQueue {
		if q == d {
			e.respawnQueue = append(e.respawnQueue[:i], e.respawnQueue[i+1:]...)
			break
		}
	}

	e.eventLog.EmitSimple(EventTypeDespawn, e.tickCount, DespawnPayload{ID: id, Reason: "removed"})
	return nil
}

// SetBroadphase switches between "sap" and "bruteforce" at the next tick.
func (e *Engine) SetBroadphase(mode string) error {
	if mode != config.ModeSAP && mode != config.ModeBruteForce {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if mode == e.mode {
		return nil
	}
	// The edge list was not swept, and so not sorted, in brute force mode.
	if mode == config.ModeSAP {
		e.sap.Sort()
	}
	log.Printf("🔀 Broad phase: %s -> %s", e.mode, mode)
	e.mode = mode
	return nil
}

// Mode returns the active broad phase name.
func (e *Engine) Mode() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mode
}

// SetObserver installs a diagnostics hook on the broad phase.
func (e *Engine) SetObserver(o spatial.Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sap.SetObserver(o)
}

// SetTickHook registers fn to run at the end of every tick, under the
// engine lock. fn must not call back into the engine.
func (e *Engine) SetTickHook(fn func(TickStats)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTick = fn
}

// Edges returns the current edge list for debugging.
func (e *Engine) Edges() []spatial.EdgeInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sap.Edges(make([]spatial.EdgeInfo, 0, e.sap.Len()))
}

// LogEdges dumps the edge list to the log.
func (e *Engine) LogEdges() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	e.sap.LogEdges()
}

// GetSnapshot returns the latest immutable snapshot. Lock-free.
func (e *Engine) GetSnapshot() *WorldSnapshot {
	return e.snapshot.Load()
}

// GetStats returns counters for the API and the bench tool.
func (e *Engine) GetStats() EngineStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return EngineStats{
		Tick:           e.tickCount,
		Mode:           e.mode,
		TickRate:       e.tickRate,
		Donuts:         e.aliveCount(),
		PendingRespawn: len(e.respawnQueue),
		Rejected:       e.rejected,
		Destroyed:      e.destroyed,
		TotalPairs:     e.totalPairs,
		AuditedPairs:   e.auditedPairs,
		MissedPairs:    e.missedPairs,
		LastPairs:      len(e.pairs),
		SweepNs:        e.lastSweep.Nanoseconds(),
		TickNs:         e.lastTick.Nanoseconds(),
		Broadphase:     e.sap.Stats(),
		EventLog:       e.eventLog.GetStats(),
	}
}

// produceSnapshot publishes an immutable copy of the world.
// Caller must hold e.mu.
func (e *Engine) produceSnapshot() {
	e.sequence++
	snap := &WorldSnapshot{
		Sequence:       e.sequence,
		Timestamp:      time.Now(),
		Tick:           e.tickCount,
		Mode:           e.mode,
		Width:          e.cfg.Width,
		Height:         e.cfg.Height,
		Donuts:         make([]DonutSnapshot, 0, len(e.donuts)),
		Pairs:          append([]PairSnapshot(nil), e.pairs...),
		PendingRespawn: len(e.respawnQueue),
		TotalPairs:     e.totalPairs,
		SweepNs:        e.lastSweep.Nanoseconds(),
		TickNs:         e.lastTick.Nanoseconds(),
	}

	for _, d := range e.donuts {
		if !d.alive {
			continue
		}
		snap.Donuts = append(snap.Donuts, DonutSnapshot{
			ID:    d.ID,
			X:     d.X,
			Y:     d.Y,
			Size:  d.Size,
			MoveX: d.MoveX,
			MoveY: d.MoveY,
			Kind:  d.kind.String(),
			Hits:  d.hits,
		})
	}
	snap.DonutCount = len(snap.Donuts)

	e.snapshot.Store(snap)
}

// StartEventLog initializes the event logging system
func (e *Engine) StartEventLog(filePath string) error {
	return e.eventLog.Start(filePath)
}

// StopEventLog gracefully stops the event logging system
func (e *Engine) StopEventLog() {
	e.eventLog.Stop()
}

// RecentEvents returns up to n of the latest logged events.
func (e *Engine) RecentEvents(n int) []Event {
	return e.eventLog.Recent(n)
}

// EventLogCounts returns the accepted and dropped event totals.
func (e *Engine) EventLogCounts() (total, dropped uint64) {
	return e.eventLog.GetTotalCount(), e.eventLog.GetDroppedCount()
}
