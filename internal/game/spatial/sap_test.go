package spatial

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// box is the test entity: a named, mutable AABB.
type box struct {
	id   int
	b    AABB
	kind Kind
}

func (x *box) Bounds() AABB { return x.b }
func (x *box) Kind() Kind   { return x.kind }

func newBox(id int, minX, minY, maxX, maxY uint16, kind Kind) *box {
	return &box{id: id, b: AABB{Min: Vec2{minX, minY}, Max: Vec2{maxX, maxY}}, kind: kind}
}

// randomBoxes builds a seeded scene on the reference 320x224 playfield.
func randomBoxes(rng *rand.Rand, n int, maxSize int) []*box {
	boxes := make([]*box, n)
	for i := range boxes {
		w := uint16(rng.Intn(maxSize + 1))
		h := uint16(rng.Intn(maxSize + 1))
		x := uint16(rng.Intn(320 - int(w) + 1))
		y := uint16(rng.Intn(224 - int(h) + 1))
		kind := KindStatic
		if rng.Intn(3) == 0 {
			kind = KindCollidable
		}
		boxes[i] = &box{id: i, b: NewAABB(x, y, w, h), kind: kind}
	}
	return boxes
}

func mustNew(t testing.TB, cfg Config, h CollisionHandler) *SweepAndPrune {
	t.Helper()
	s, err := New(cfg, h)
	require.NoError(t, err)
	return s
}

// recordingObserver counts hook invocations.
type recordingObserver struct {
	NopObserver
	inserted, rejected, sorts, pairs, overflows int
	lastSort                                    SortStats
}

func (o *recordingObserver) EdgeInserted(Entity, int, int) { o.inserted++ }
func (o *recordingObserver) InsertRejected(Entity)         { o.rejected++ }
func (o *recordingObserver) Sorted(s SortStats)            { o.sorts++; o.lastSort = s }
func (o *recordingObserver) PairDetected(Entity, Entity)   { o.pairs++ }
func (o *recordingObserver) TouchingOverflow(Entity)       { o.overflows++ }

// =============================================================================
// CONFIG
// =============================================================================

func TestSortMayDrift(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.SortMayDrift())

	cfg.SortFrequency = DriftSortFrequency
	assert.False(t, cfg.SortMayDrift())

	cfg.SortFrequency = DriftSortFrequency + 1
	assert.True(t, cfg.SortMayDrift())
	assert.NoError(t, cfg.Validate(), "drifting configs stay valid")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"odd edges", func(c *Config) { c.MaxEdges = 7 }, true},
		{"zero edges", func(c *Config) { c.MaxEdges = 0 }, true},
		{"two edges", func(c *Config) { c.MaxEdges = 2 }, false},
		{"no touching", func(c *Config) { c.MaxTouching = 0 }, true},
		{"zero sort frequency", func(c *Config) { c.SortFrequency = 0 }, true},
		{"append strategy", func(c *Config) { c.Insert = InsertAppend }, false},
		{"bogus strategy", func(c *Config) { c.Insert = 9 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
				_, newErr := New(cfg, nil)
				assert.ErrorIs(t, newErr, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseInsertStrategy(t *testing.T) {
	s, err := ParseInsertStrategy("Append")
	require.NoError(t, err)
	assert.Equal(t, InsertAppend, s)
	assert.Equal(t, "append", s.String())

	s, err = ParseInsertStrategy("")
	require.NoError(t, err)
	assert.Equal(t, InsertSorted, s)

	_, err = ParseInsertStrategy("quick")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// =============================================================================
// INSERT
// =============================================================================

func TestInsertSortedKeepsOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 400
	s := mustNew(t, cfg, nil)

	rng := rand.New(rand.NewSource(7))
	boxes := randomBoxes(rng, 200, 30)
	for _, b := range boxes {
		require.NoError(t, s.Insert(b))
		require.True(t, s.IsSorted(), "list must stay sorted after every sorted insert")
	}

	assert.Equal(t, 400, s.Len(), "two edges per entity")
	assert.Equal(t, 200, s.Tracked())
}

func TestInsertSortedPlacesEdges(t *testing.T) {
	s := mustNew(t, DefaultConfig(), nil)
	a := newBox(0, 10, 0, 50, 10, KindStatic)
	b := newBox(1, 20, 0, 30, 10, KindStatic)
	c := newBox(2, 0, 0, 5, 10, KindStatic)

	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))
	require.NoError(t, s.Insert(c))

	keys := make([]uint16, 0, s.Len())
	for _, info := range s.Edges(nil) {
		keys = append(keys, info.Key)
	}
	assert.Equal(t, []uint16{0, 5, 10, 20, 30, 50}, keys)
}

func TestInsertAppendDefersSort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Insert = InsertAppend
	cfg.SortFrequency = 100
	obs := &recordingObserver{}
	s := mustNew(t, cfg, nil)
	s.SetObserver(obs)

	require.NoError(t, s.Insert(newBox(0, 100, 0, 110, 10, KindStatic)))
	require.NoError(t, s.Insert(newBox(1, 0, 0, 10, 10, KindStatic)))
	assert.False(t, s.IsSorted(), "append leaves the list unsorted")

	// A pending append forces the sort even though the throttle is far off.
	require.NoError(t, s.Sweep())
	assert.True(t, s.IsSorted())
	assert.Equal(t, 1, obs.sorts)
	assert.Equal(t, 2, obs.inserted)
}

func TestInsertCapacityExhausted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 4
	obs := &recordingObserver{}
	s := mustNew(t, cfg, nil)
	s.SetObserver(obs)

	require.NoError(t, s.Insert(newBox(0, 0, 0, 1, 1, KindStatic)))
	require.NoError(t, s.Insert(newBox(1, 2, 0, 3, 1, KindStatic)))

	err := s.Insert(newBox(2, 4, 0, 5, 1, KindStatic))
	assert.True(t, errors.Is(err, ErrCapacityExhausted))
	assert.Equal(t, 4, s.Len(), "rejected insert must not touch the list")
	assert.Equal(t, uint64(1), s.Stats().InsertRejected)
	assert.Equal(t, 1, obs.rejected)
}

func TestInsertReclaimsTombstonesWhenFull(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 4
	s := mustNew(t, cfg, nil)

	a := newBox(0, 0, 0, 1, 1, KindStatic)
	b := newBox(1, 2, 0, 3, 1, KindStatic)
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))
	require.True(t, s.Remove(a))

	c := newBox(2, 4, 0, 5, 1, KindStatic)
	require.NoError(t, s.Insert(c), "tombstones must be compacted before rejecting")
	assert.Equal(t, 4, s.Len())
	assert.True(t, s.Contains(b))
	assert.True(t, s.Contains(c))
	assert.False(t, s.Contains(a))
}

func TestInsertNil(t *testing.T) {
	s := mustNew(t, DefaultConfig(), nil)
	assert.ErrorIs(t, s.Insert(nil), ErrNilEntity)
	assert.Equal(t, 0, s.Len())
}

// =============================================================================
// REMOVE / CLEAN
// =============================================================================

func TestRemove(t *testing.T) {
	s := mustNew(t, DefaultConfig(), nil)
	a := newBox(0, 0, 0, 10, 10, KindStatic)
	b := newBox(1, 5, 0, 15, 10, KindStatic)
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))

	assert.True(t, s.Remove(a))
	assert.Equal(t, 4, s.Len(), "removal only tombstones")
	assert.Equal(t, 1, s.Tracked())
	assert.Equal(t, 2, s.Stats().Tombstones)

	assert.False(t, s.Remove(a), "second removal is a no-op")
	assert.False(t, s.Remove(newBox(9, 0, 0, 1, 1, KindStatic)), "absent entity is a no-op")
	assert.False(t, s.Remove(nil))
	assert.Equal(t, 2, s.Stats().Tombstones)

	live := 0
	for _, info := range s.Edges(nil) {
		if info.Live {
			live++
		}
	}
	assert.Equal(t, 2, live)
}

func TestCleanBijection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 200
	s := mustNew(t, cfg, nil)

	rng := rand.New(rand.NewSource(11))
	boxes := randomBoxes(rng, 100, 20)
	for _, b := range boxes {
		require.NoError(t, s.Insert(b))
	}
	require.Equal(t, 200, s.Len())

	removed := 0
	for i := 0; i < len(boxes); i += 3 {
		require.True(t, s.Remove(boxes[i]))
		removed++
	}

	before := liveOrder(s)
	purged := s.Clean()

	assert.Equal(t, 2*removed, purged)
	assert.Equal(t, 2*(100-removed), s.Len())
	assert.Equal(t, 0, s.Stats().Tombstones)
	assert.Equal(t, before, liveOrder(s), "compaction must keep relative order")
	assert.True(t, s.IsSorted())
}

// liveOrder lists the live edges as (id, side) in list order.
func liveOrder(s *SweepAndPrune) [][2]int {
	var out [][2]int
	for _, e := range s.edges {
		if e.entity == nil {
			continue
		}
		side := 0
		if e.left {
			side = 1
		}
		out = append(out, [2]int{e.entity.(*box).id, side})
	}
	return out
}

// =============================================================================
// SORT
// =============================================================================

func TestSortAfterMotion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEdges = 120
	s := mustNew(t, cfg, nil)

	rng := rand.New(rand.NewSource(3))
	boxes := randomBoxes(rng, 60, 16)
	for _, b := range boxes {
		require.NoError(t, s.Insert(b))
	}

	for tick := 0; tick < 50; tick++ {
		for _, b := range boxes {
			dx := uint16(rng.Intn(3))
			if b.b.Max.X+dx <= 320 {
				b.b.Min.X += dx
				b.b.Max.X += dx
			}
		}
		s.Sort()
		require.True(t, s.IsSorted(), "tick %d", tick)
	}
	assert.Equal(t, 120, s.Len())
}

func TestSortIsStable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Insert = InsertAppend
	s := mustNew(t, cfg, nil)

	// Zero-width boxes and shared keys: equal keys must keep their order.
	z := newBox(0, 50, 0, 50, 10, KindStatic)
	a := newBox(1, 50, 0, 60, 10, KindStatic)
	b := newBox(2, 40, 0, 50, 10, KindStatic)
	for _, x := range []*box{z, a, b} {
		require.NoError(t, s.Insert(x))
	}

	s.Sort()
	assert.Equal(t, [][2]int{
		{2, 1}, // b left 40
		{0, 1}, // z left 50
		{0, 0}, // z right 50
		{1, 1}, // a left 50
		{2, 0}, // b right 50
		{1, 0}, // a right 60
	}, liveOrder(s))
}

func TestSortPurgesTombstones(t *testing.T) {
	obs := &recordingObserver{}
	s := mustNew(t, DefaultConfig(), nil)
	s.SetObserver(obs)

	a := newBox(0, 0, 0, 10, 10, KindStatic)
	b := newBox(1, 5, 0, 15, 10, KindStatic)
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))
	s.Remove(b)

	s.Sort()
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, SortStats{Edges: 2, Purged: 2, Shifts: 0}, obs.lastSort)
}

func TestSortThrottle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SortFrequency = 3
	s := mustNew(t, cfg, nil)
	require.NoError(t, s.Insert(newBox(0, 0, 0, 10, 10, KindStatic)))

	sorts := make([]uint64, 0, 7)
	for i := 0; i < 7; i++ {
		require.NoError(t, s.Sweep())
		sorts = append(sorts, s.Stats().Sorts)
	}
	assert.Equal(t, []uint64{0, 0, 1, 1, 1, 2, 2}, sorts)
}

func TestInitResets(t *testing.T) {
	s := mustNew(t, DefaultConfig(), nil)
	require.NoError(t, s.Insert(newBox(0, 0, 0, 10, 10, KindCollidable)))
	require.NoError(t, s.Insert(newBox(1, 5, 0, 15, 10, KindCollidable)))
	require.NoError(t, s.Sweep())
	require.Equal(t, uint64(1), s.Stats().Pairs)

	s.Init()
	st := s.Stats()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 72, s.Cap(), "storage is kept")
	assert.Equal(t, uint64(0), st.Pairs)
	assert.Equal(t, uint64(0), st.Sweeps)
	assert.Equal(t, 36, st.Capacity)
}

func TestEdgesDump(t *testing.T) {
	s := mustNew(t, DefaultConfig(), nil)
	a := newBox(0, 3, 0, 9, 10, KindCollidable)
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(newBox(1, 1, 0, 2, 10, KindStatic)))
	s.Remove(a)

	infos := s.Edges(nil)
	require.Len(t, infos, 4)
	assert.Equal(t, EdgeInfo{Index: 0, Key: 1, Left: true, Live: true, Kind: "static"}, infos[0])
	assert.Equal(t, EdgeInfo{Index: 2, Key: 0, Left: true, Live: false}, infos[2])

	// Must not panic on tombstones.
	s.LogEdges()
}
