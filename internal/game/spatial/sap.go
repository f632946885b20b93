package spatial

import (
	"fmt"
	"log"
	"strings"
)

// SweepAndPrune implements 1-axis sweep with temporal coherence for broad-phase collision detection.
// It keeps the left/right edges of every tracked entity's X projection in a single ordered list,
// restores the order by insertion sort, and sweeps it once per tick to find overlapping pairs.
//
// With temporal coherence (entities move a few pixels per tick), the list stays almost sorted and
// insertion sort approaches O(n). Removal only tombstones edges; tombstones are compacted right
// before the next full sort, so deletions never reshuffle the array mid-tick.
//
// Origin: Baraff & Witkin (SIGGRAPH 1992); Bullet Physics (2003)
type SweepAndPrune struct {
	cfg      Config
	edges    []Edge  // len = edge count (tombstones included), cap = MaxEdges
	touching []int32 // active set: indices of left edges, cap = MaxTouching

	handler  CollisionHandler
	observer Observer

	sweepCount  int  // sweeps left before the next throttled sort
	pendingSort bool // set by append inserts, forces a sort on the next sweep
	sweeping    bool
	tombstones  int

	stats Stats
}

// Edge is one end of an entity's projection on the sweep axis.
// A nil entity marks a tombstone left behind by Remove.
type Edge struct {
	entity Entity
	left   bool
}

// Entity returns the owning entity, nil for a tombstone.
func (e Edge) Entity() Entity { return e.entity }

// IsLeft reports whether this is the min edge.
func (e Edge) IsLeft() bool { return e.left }

// Live reports whether the edge still belongs to a tracked entity.
func (e Edge) Live() bool { return e.entity != nil }

// key is the projection value. Must not be called on a tombstone.
func (e Edge) key() uint16 {
	b := e.entity.Bounds()
	if e.left {
		return b.Min.X
	}
	return b.Max.X
}

// EdgeInfo is a read-only view of an edge for debugging and the HTTP dump.
type EdgeInfo struct {
	Index int    `json:"index" msgpack:"index"`
	Key   uint16 `json:"key" msgpack:"key"`
	Left  bool   `json:"left" msgpack:"left"`
	Live  bool   `json:"live" msgpack:"live"`
	Kind  string `json:"kind,omitempty" msgpack:"kind,omitempty"`
}

// Stats holds monotonic counters plus a few gauges sampled at call time.
type Stats struct {
	Sweeps            uint64 `json:"sweeps"`
	Sorts             uint64 `json:"sorts"`
	Pairs             uint64 `json:"pairs"`
	LastPairs         int    `json:"lastPairs"`
	InsertRejected    uint64 `json:"insertRejected"`
	TouchingOverflows uint64 `json:"touchingOverflows"`
	PeakTouching      int    `json:"peakTouching"`

	Edges      int `json:"edges"`
	Tombstones int `json:"tombstones"`
	Tracked    int `json:"tracked"`
	Capacity   int `json:"capacity"`
}

// New creates a broad phase with all storage preallocated from cfg.
// handler may be nil and set later with SetHandler.
func New(cfg Config, handler CollisionHandler) (*SweepAndPrune, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &SweepAndPrune{
		cfg:      cfg,
		edges:    make([]Edge, 0, cfg.MaxEdges),
		touching: make([]int32, 0, cfg.MaxTouching),
		handler:  handler,
		observer: NopObserver{},
	}
	s.Init()
	return s, nil
}

// Init empties the edge list and resets the sort throttle and counters.
// Storage is kept.
func (s *SweepAndPrune) Init() {
	clear(s.edges)
	s.edges = s.edges[:0]
	s.touching = s.touching[:0]
	s.sweepCount = s.cfg.SortFrequency
	s.pendingSort = false
	s.sweeping = false
	s.tombstones = 0
	s.stats = Stats{}
}

// SetHandler replaces the collision callback.
func (s *SweepAndPrune) SetHandler(h CollisionHandler) {
	s.handler = h
}

// SetObserver installs a diagnostics hook. nil restores the no-op observer.
func (s *SweepAndPrune) SetObserver(o Observer) {
	if o == nil {
		o = NopObserver{}
	}
	s.observer = o
}

// Config returns the configuration the engine was built with.
func (s *SweepAndPrune) Config() Config {
	return s.cfg
}

// Insert adds the two edges of e.
//
// With InsertSorted the edges go straight to their ordered position (O(n));
// with InsertAppend they are appended and the next Sweep sorts regardless of
// the throttle. e must not already be tracked.
//
// When the list is full, tombstones are compacted first; if that does not
// free two slots the call is a no-op returning ErrCapacityExhausted.
func (s *SweepAndPrune) Insert(e Entity) error {
	if e == nil {
		return ErrNilEntity
	}
	if s.sweeping {
		return ErrSweepInProgress
	}

	if len(s.edges)+2 > cap(s.edges) {
		if s.tombstones > 0 {
			s.Clean()
		}
		if len(s.edges)+2 > cap(s.edges) {
			s.stats.InsertRejected++
			s.observer.InsertRejected(e)
			return ErrCapacityExhausted
		}
	}

	var left, right int
	switch s.cfg.Insert {
	case InsertAppend:
		left = len(s.edges)
		right = left + 1
		s.edges = append(s.edges, Edge{entity: e, left: true}, Edge{entity: e, left: false})
		s.pendingSort = true
	default:
		b := e.Bounds()
		left = s.insertAt(Edge{entity: e, left: true}, b.Min.X, 0)
		// The right key is never below the left one, so its slot is after it.
		right = s.insertAt(Edge{entity: e, left: false}, b.Max.X, left+1)
	}

	s.observer.EdgeInserted(e, left, right)
	return nil
}

// insertAt places edge in front of the first live edge at or after from whose
// key is strictly greater, so equal keys keep insertion order.
func (s *SweepAndPrune) insertAt(edge Edge, key uint16, from int) int {
	n := len(s.edges)
	at := n
	for j := from; j < n; j++ {
		if s.edges[j].entity == nil {
			continue
		}
		if key < s.edges[j].key() {
			at = j
			break
		}
	}

	s.edges = s.edges[:n+1]
	copy(s.edges[at+1:], s.edges[at:n])
	s.edges[at] = edge
	return at
}

// Remove tombstones the edges of e and reports whether e was tracked.
// Removing an absent entity is a no-op. Safe to call from the collision
// handler during a sweep: the scan checks liveness through the edge list.
func (s *SweepAndPrune) Remove(e Entity) bool {
	if e == nil {
		return false
	}
	found := 0
	for i := range s.edges {
		if s.edges[i].entity == e {
			s.edges[i].entity = nil
			found++
			if found == 2 {
				break
			}
		}
	}
	s.tombstones += found
	return found > 0
}

// Clean compacts the edge list, dropping tombstones while keeping the
// relative order of live edges. Returns the number of edges purged.
// It is a no-op during a sweep since it would move edges under the scan.
func (s *SweepAndPrune) Clean() int {
	if s.sweeping {
		return 0
	}
	w := 0
	for i := range s.edges {
		if s.edges[i].entity != nil {
			s.edges[w] = s.edges[i]
			w++
		}
	}
	purged := len(s.edges) - w
	clear(s.edges[w:])
	s.edges = s.edges[:w]
	s.tombstones = 0
	return purged
}

// Sort compacts the list and restores the ordering invariant with a stable
// insertion sort. Returns the number of element shifts, a direct measure of
// how much the scene moved since the last sort. No-op during a sweep.
func (s *SweepAndPrune) Sort() int {
	if s.sweeping {
		return 0
	}
	purged := s.Clean()
	shifts := insertionSortEdges(s.edges)
	s.pendingSort = false
	s.stats.Sorts++
	s.observer.Sorted(SortStats{Edges: len(s.edges), Purged: purged, Shifts: shifts})
	return shifts
}

// insertionSortEdges sorts edges in-place by key using insertion sort.
// This is O(n) for nearly-sorted data due to temporal coherence, and stable:
// strict comparison keeps equal keys in their current order.
// edges must not contain tombstones.
func insertionSortEdges(edges []Edge) int {
	shifts := 0
	for i := 1; i < len(edges); i++ {
		cur := edges[i]
		k := cur.key()
		j := i - 1
		for j >= 0 && edges[j].key() > k {
			edges[j+1] = edges[j]
			j--
			shifts++
		}
		edges[j+1] = cur
	}
	return shifts
}

// IsSorted reports whether live edges are in non-decreasing key order.
func (s *SweepAndPrune) IsSorted() bool {
	var prev uint16
	seen := false
	for i := range s.edges {
		if s.edges[i].entity == nil {
			continue
		}
		k := s.edges[i].key()
		if seen && k < prev {
			return false
		}
		prev, seen = k, true
	}
	return true
}

// Len returns the number of edges, tombstones included.
func (s *SweepAndPrune) Len() int { return len(s.edges) }

// Cap returns the edge capacity (MaxEdges).
func (s *SweepAndPrune) Cap() int { return cap(s.edges) }

// Tracked returns the number of live entities.
func (s *SweepAndPrune) Tracked() int { return (len(s.edges) - s.tombstones) / 2 }

// Contains reports whether e currently has live edges.
func (s *SweepAndPrune) Contains(e Entity) bool {
	if e == nil {
		return false
	}
	for i := range s.edges {
		if s.edges[i].entity == e {
			return true
		}
	}
	return false
}

// Edges appends a view of every edge to dst and returns it.
func (s *SweepAndPrune) Edges(dst []EdgeInfo) []EdgeInfo {
	for i, e := range s.edges {
		info := EdgeInfo{Index: i, Left: e.left, Live: e.entity != nil}
		if info.Live {
			info.Key = e.key()
			info.Kind = e.entity.Kind().String()
		}
		dst = append(dst, info)
	}
	return dst
}

// LogEdges dumps the edge list through the standard logger.
func (s *SweepAndPrune) LogEdges() {
	log.Printf("📋 SAP edge list: %d edges, %d tombstones", len(s.edges), s.tombstones)
	for _, info := range s.Edges(make([]EdgeInfo, 0, len(s.edges))) {
		side := "right"
		if info.Left {
			side = "left"
		}
		if !info.Live {
			log.Printf("   #%-3d %-5s <removed>", info.Index, side)
			continue
		}
		log.Printf("   #%-3d %-5s x=%d (%s)", info.Index, side, info.Key, info.Kind)
	}
}

// Stats returns a copy of the counters with current gauges filled in.
func (s *SweepAndPrune) Stats() Stats {
	st := s.stats
	st.Edges = len(s.edges)
	st.Tombstones = s.tombstones
	st.Tracked = s.Tracked()
	st.Capacity = cap(s.edges) / 2
	return st
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// InsertStrategy selects how Insert places new edges.
type InsertStrategy uint8

const (
	// InsertSorted scans for the ordered slot and shifts; the list stays sorted.
	InsertSorted InsertStrategy = iota
	// InsertAppend appends in O(1) and defers ordering to the next sweep.
	InsertAppend
)

// String returns the config name of the strategy.
func (s InsertStrategy) String() string {
	if s == InsertAppend {
		return "append"
	}
	return "sorted"
}

// ParseInsertStrategy accepts "sorted" or "append" (case-insensitive).
func ParseInsertStrategy(v string) (InsertStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "sorted":
		return InsertSorted, nil
	case "append":
		return InsertAppend, nil
	default:
		return InsertSorted, fmt.Errorf("%w: unknown insert strategy %q", ErrInvalidConfig, v)
	}
}

// Config sizes the fixed storage and tunes maintenance.
type Config struct {
	MaxEdges      int            // edge capacity, even; entity capacity is MaxEdges/2
	MaxTouching   int            // max entities simultaneously open on X during a sweep
	SortFrequency int            // sweeps between full sorts, 1 = sort every sweep; see SortMayDrift
	Insert        InsertStrategy // edge placement on Insert
}

// DriftSortFrequency is the largest SortFrequency considered safe for the
// reference motion (at most 2 px per tick on a 16 px lattice). Between sorts
// the sweep runs on the last order; once edges drift 3 or more positions
// from it, pairs go unreported until the next sort.
const DriftSortFrequency = 4

// SortMayDrift reports whether SortFrequency is above DriftSortFrequency.
// Such configs stay valid but will miss pairs for several ticks at a time.
func (c Config) SortMayDrift() bool {
	return c.SortFrequency > DriftSortFrequency
}

// DefaultConfig mirrors the reference hardware budget: 36 entities, 12 of
// them overlapping on X at once, sorted every tick.
func DefaultConfig() Config {
	return Config{
		MaxEdges:      72,
		MaxTouching:   12,
		SortFrequency: 1,
		Insert:        InsertSorted,
	}
}

// Validate checks the sizing constraints.
func (c Config) Validate() error {
	if c.MaxEdges < 2 || c.MaxEdges%2 != 0 {
		return fmt.Errorf("%w: MaxEdges must be even and >= 2, got %d", ErrInvalidConfig, c.MaxEdges)
	}
	if c.MaxEdges > 1<<31-1 {
		return fmt.Errorf("%w: MaxEdges too large: %d", ErrInvalidConfig, c.MaxEdges)
	}
	if c.MaxTouching < 1 {
		return fmt.Errorf("%w: MaxTouching must be >= 1, got %d", ErrInvalidConfig, c.MaxTouching)
	}
	if c.SortFrequency < 1 {
		return fmt.Errorf("%w: SortFrequency must be >= 1, got %d", ErrInvalidConfig, c.SortFrequency)
	}
	if c.Insert > InsertAppend {
		return fmt.Errorf("%w: unknown insert strategy %d", ErrInvalidConfig, c.Insert)
	}
	return nil
}
