package spatial

import "log"

// SortStats describes one full maintenance pass (clean + insertion sort).
type SortStats struct {
	Edges  int // live edges after compaction
	Purged int // tombstones removed by the compaction step
	Shifts int // element moves performed by the insertion sort
}

// Observer receives diagnostics from the broad phase at fixed extension
// points. Calls are synchronous and happen on the caller's goroutine, so
// implementations must be cheap and must not call back into the engine.
type Observer interface {
	EdgeInserted(e Entity, leftIndex, rightIndex int)
	InsertRejected(e Entity)
	Sorted(stats SortStats)
	PairDetected(a, b Entity)
	TouchingOverflow(e Entity)
}

// NopObserver ignores every notification. Embed it to implement only the
// callbacks you care about.
type NopObserver struct{}

func (NopObserver) EdgeInserted(Entity, int, int) {}
func (NopObserver) InsertRejected(Entity)         {}
func (NopObserver) Sorted(SortStats)              {}
func (NopObserver) PairDetected(Entity, Entity)   {}
func (NopObserver) TouchingOverflow(Entity)       {}

// LogObserver writes every notification through the standard logger.
// Pair logging is off by default since it fires once per overlapping pair.
type LogObserver struct {
	LogPairs bool
}

func (o LogObserver) EdgeInserted(e Entity, left, right int) {
	b := e.Bounds()
	log.Printf("📐 SAP insert %v: left edge #%d (x=%d), right edge #%d (x=%d)",
		e.Kind(), left, b.Min.X, right, b.Max.X)
}

func (o LogObserver) InsertRejected(e Entity) {
	log.Printf("⚠️ SAP edge list full, insert rejected (%v)", e.Kind())
}

func (o LogObserver) Sorted(s SortStats) {
	log.Printf("🔃 SAP sort: %d edges, %d tombstones purged, %d shifts", s.Edges, s.Purged, s.Shifts)
}

func (o LogObserver) PairDetected(a, b Entity) {
	if !o.LogPairs {
		return
	}
	ba, bb := a.Bounds(), b.Bounds()
	log.Printf("💥 SAP pair: [%d,%d]-[%d,%d] x [%d,%d]-[%d,%d]",
		ba.Min.X, ba.Min.Y, ba.Max.X, ba.Max.Y, bb.Min.X, bb.Min.Y, bb.Max.X, bb.Max.Y)
}

func (o LogObserver) TouchingOverflow(e Entity) {
	b := e.Bounds()
	log.Printf("⚠️ SAP active set full, entity at x=%d skipped this sweep", b.Min.X)
}

// MultiObserver fans notifications out to several observers in order.
type MultiObserver []Observer

func (m MultiObserver) EdgeInserted(e Entity, left, right int) {
	for _, o := range m {
		o.EdgeInserted(e, left, right)
	}
}

func (m MultiObserver) InsertRejected(e Entity) {
	for _, o := range m {
		o.InsertRejected(e)
	}
}

func (m MultiObserver) Sorted(s SortStats) {
	for _, o := range m {
		o.Sorted(s)
	}
}

func (m MultiObserver) PairDetected(a, b Entity) {
	for _, o := range m {
		o.PairDetected(a, b)
	}
}

func (m MultiObserver) TouchingOverflow(e Entity) {
	for _, o := range m {
		o.TouchingOverflow(e)
	}
}
