package spatial

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pairKey is an unordered pair of box ids.
type pairKey struct{ lo, hi int }

func keyOf(a, b Entity) pairKey {
	x, y := a.(*box).id, b.(*box).id
	if x > y {
		x, y = y, x
	}
	return pairKey{x, y}
}

// collect returns a handler that records every pair and the multiset counts.
func collect(into map[pairKey]int) CollisionHandler {
	return func(a, b Entity) {
		into[keyOf(a, b)]++
	}
}

func entitiesOf(boxes []*box) []Entity {
	out := make([]Entity, len(boxes))
	for i, b := range boxes {
		out[i] = b
	}
	return out
}

// =============================================================================
// REFERENCE SCENARIOS
// =============================================================================

func TestSweepScenarios(t *testing.T) {
	tests := []struct {
		name  string
		boxes []*box
		want  []pairKey
	}{
		{
			name: "simple overlap",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindCollidable),
				newBox(1, 5, 5, 15, 15, KindStatic),
			},
			want: []pairKey{{0, 1}},
		},
		{
			name: "static pair filtered",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindStatic),
				newBox(1, 5, 5, 15, 15, KindStatic),
			},
		},
		{
			name: "touching on X",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindCollidable),
				newBox(1, 10, 0, 20, 10, KindCollidable),
			},
		},
		{
			name: "touching on Y",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindCollidable),
				newBox(1, 0, 10, 10, 20, KindCollidable),
			},
		},
		{
			name: "X overlap without Y overlap",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindCollidable),
				newBox(1, 5, 20, 15, 30, KindCollidable),
			},
		},
		{
			name: "three-way",
			boxes: []*box{
				newBox(0, 0, 0, 10, 10, KindCollidable),
				newBox(1, 5, 0, 15, 10, KindStatic),
				newBox(2, 8, 0, 18, 10, KindStatic),
			},
			want: []pairKey{{0, 1}, {0, 2}},
		},
		{
			name: "contained box",
			boxes: []*box{
				newBox(0, 0, 0, 50, 50, KindStatic),
				newBox(1, 10, 10, 20, 20, KindCollidable),
			},
			want: []pairKey{{0, 1}},
		},
	}

	for _, tt := range tests {
		for _, strategy := range []InsertStrategy{InsertSorted, InsertAppend} {
			for _, reversed := range []bool{false, true} {
				name := tt.name + "/" + strategy.String()
				if reversed {
					name += "/reversed"
				}
				t.Run(name, func(t *testing.T) {
					cfg := DefaultConfig()
					cfg.Insert = strategy
					got := map[pairKey]int{}
					s := mustNew(t, cfg, collect(got))

					order := append([]*box(nil), tt.boxes...)
					if reversed {
						for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
							order[i], order[j] = order[j], order[i]
						}
					}
					for _, b := range order {
						require.NoError(t, s.Insert(b))
					}

					require.NoError(t, s.Sweep())

					want := map[pairKey]int{}
					for _, p := range tt.want {
						want[p] = 1
					}
					assert.Equal(t, want, got)
					assert.Equal(t, len(tt.want), s.Stats().LastPairs)
				})
			}
		}
	}
}

func TestSweepEmptyAndSingle(t *testing.T) {
	calls := 0
	s := mustNew(t, DefaultConfig(), func(a, b Entity) { calls++ })

	require.NoError(t, s.Sweep())
	assert.Equal(t, 0, calls)

	require.NoError(t, s.Insert(newBox(0, 0, 0, 100, 100, KindCollidable)))
	require.NoError(t, s.Sweep())
	assert.Equal(t, 0, calls)
	assert.Equal(t, uint64(2), s.Stats().Sweeps)
}

// =============================================================================
// EQUIVALENCE WITH BRUTE FORCE
// =============================================================================

func TestSweepMatchesBruteForce(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		for _, strategy := range []InsertStrategy{InsertSorted, InsertAppend} {
			rng := rand.New(rand.NewSource(seed))
			boxes := randomBoxes(rng, 80, 40)

			cfg := Config{MaxEdges: 160, MaxTouching: 80, SortFrequency: 1, Insert: strategy}
			got := map[pairKey]int{}
			s := mustNew(t, cfg, collect(got))
			for _, b := range boxes {
				require.NoError(t, s.Insert(b))
			}

			for tick := 0; tick < 5; tick++ {
				clear(got)
				require.NoError(t, s.Sweep())

				want := map[pairKey]int{}
				BruteForce(entitiesOf(boxes), collect(want))
				require.Equal(t, want, got, "seed %d strategy %v tick %d", seed, strategy, tick)

				// Drift to exercise the insertion sort between ticks.
				for _, b := range boxes {
					if rng.Intn(2) == 0 && b.b.Min.X >= 2 {
						b.b.Min.X -= 2
						b.b.Max.X -= 2
					} else if b.b.Max.X <= 317 {
						b.b.Min.X += 3
						b.b.Max.X += 3
					}
				}
			}
		}
	}
}

func TestSweepIdempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	boxes := randomBoxes(rng, 30, 40)
	cfg := DefaultConfig()
	cfg.MaxTouching = 30

	first := map[pairKey]int{}
	s := mustNew(t, cfg, collect(first))
	for _, b := range boxes {
		require.NoError(t, s.Insert(b))
	}
	require.NoError(t, s.Sweep())

	second := map[pairKey]int{}
	s.SetHandler(collect(second))
	require.NoError(t, s.Sweep())

	assert.Equal(t, first, second)
	for p, n := range first {
		assert.Equal(t, 1, n, "pair %v reported more than once", p)
	}
}

func TestSweepStaleOrderNoFalsePositives(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SortFrequency = 1000
	got := map[pairKey]int{}
	s := mustNew(t, cfg, collect(got))

	a := newBox(0, 0, 0, 10, 10, KindCollidable)
	b := newBox(1, 5, 0, 15, 10, KindCollidable)
	require.NoError(t, s.Insert(a))
	require.NoError(t, s.Insert(b))

	// Move b far right without sorting: its left edge is still "inside" a.
	b.b.Min.X, b.b.Max.X = 200, 210
	require.NoError(t, s.Sweep())
	assert.Empty(t, got)
	assert.Equal(t, uint64(0), s.Stats().Sorts)
}

// =============================================================================
// REENTRANCY
// =============================================================================

func TestSweepHandlerRemovesOther(t *testing.T) {
	// All three overlap; the first pair removes the active entity.
	a := newBox(0, 0, 0, 30, 10, KindCollidable)
	b := newBox(1, 5, 0, 30, 10, KindCollidable)
	c := newBox(2, 10, 0, 30, 10, KindCollidable)

	got := map[pairKey]int{}
	var s *SweepAndPrune
	s = mustNew(t, DefaultConfig(), func(x, y Entity) {
		got[keyOf(x, y)]++
		s.Remove(y)
	})
	for _, e := range []*box{a, b, c} {
		require.NoError(t, s.Insert(e))
	}

	require.NoError(t, s.Sweep())
	// b meets a and removes it; c only meets b, a is gone.
	assert.Equal(t, map[pairKey]int{{0, 1}: 1, {1, 2}: 1}, got)
	assert.False(t, s.Contains(a))
	assert.False(t, s.Contains(b))
	assert.True(t, s.Contains(c))

	clear(got)
	require.NoError(t, s.Sweep())
	assert.Empty(t, got)
	assert.Equal(t, 2, s.Len(), "tombstones purged by the next sort")
}

func TestSweepHandlerRemovesCurrent(t *testing.T) {
	a := newBox(0, 0, 0, 30, 10, KindCollidable)
	b := newBox(1, 5, 0, 30, 10, KindCollidable)
	c := newBox(2, 10, 0, 30, 10, KindCollidable)

	got := map[pairKey]int{}
	var s *SweepAndPrune
	s = mustNew(t, DefaultConfig(), func(x, y Entity) {
		got[keyOf(x, y)]++
		s.Remove(x)
	})
	for _, e := range []*box{a, b, c} {
		require.NoError(t, s.Insert(e))
	}

	require.NoError(t, s.Sweep())
	// b is removed on its first pair and must not be paired again.
	assert.Equal(t, map[pairKey]int{{0, 1}: 1, {0, 2}: 1}, got)
	assert.True(t, s.Contains(a))
}

func TestSweepHandlerRemovesThirdParty(t *testing.T) {
	a := newBox(0, 0, 0, 30, 10, KindCollidable)
	b := newBox(1, 5, 0, 30, 10, KindCollidable)
	c := newBox(2, 10, 0, 30, 10, KindCollidable)
	d := newBox(3, 20, 0, 40, 10, KindCollidable)

	got := map[pairKey]int{}
	var s *SweepAndPrune
	s = mustNew(t, DefaultConfig(), func(x, y Entity) {
		got[keyOf(x, y)]++
		s.Remove(d)
	})
	for _, e := range []*box{a, b, c, d} {
		require.NoError(t, s.Insert(e))
	}

	require.NoError(t, s.Sweep())
	for p := range got {
		assert.NotEqual(t, 3, p.hi, "removed entity reported: %v", p)
	}
	assert.Len(t, got, 3)
}

func TestSweepReentrantCallsRejected(t *testing.T) {
	var insertErr, sweepErr error
	var sortShifts, cleaned int
	var s *SweepAndPrune
	s = mustNew(t, DefaultConfig(), func(x, y Entity) {
		insertErr = s.Insert(newBox(9, 0, 0, 1, 1, KindStatic))
		sweepErr = s.Sweep()
		sortShifts = s.Sort()
		cleaned = s.Clean()
	})
	require.NoError(t, s.Insert(newBox(0, 0, 0, 10, 10, KindCollidable)))
	require.NoError(t, s.Insert(newBox(1, 5, 0, 15, 10, KindCollidable)))

	require.NoError(t, s.Sweep())
	assert.ErrorIs(t, insertErr, ErrSweepInProgress)
	assert.ErrorIs(t, sweepErr, ErrSweepInProgress)
	assert.Equal(t, 0, sortShifts)
	assert.Equal(t, 0, cleaned)
	assert.Equal(t, 4, s.Len())

	// Guard is released after the sweep.
	assert.NoError(t, s.Insert(newBox(2, 100, 0, 110, 10, KindStatic)))
}

// =============================================================================
// OVERFLOW
// =============================================================================

func TestSweepTouchingOverflow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxTouching = 2
	obs := &recordingObserver{}
	got := map[pairKey]int{}
	s := mustNew(t, cfg, collect(got))
	s.SetObserver(obs)

	// Four nested boxes open on X at once.
	for i := 0; i < 4; i++ {
		require.NoError(t, s.Insert(newBox(i, uint16(i), 0, 100, 10, KindCollidable)))
	}

	err := s.Sweep()
	require.ErrorIs(t, err, ErrTouchingOverflow)

	// 0 and 1 open, 2 pairs with both then is dropped, 3 pairs with 0 and 1.
	assert.Equal(t, map[pairKey]int{
		{0, 1}: 1,
		{0, 2}: 1, {1, 2}: 1,
		{0, 3}: 1, {1, 3}: 1,
	}, got)
	assert.Equal(t, 2, obs.overflows)
	assert.Equal(t, uint64(2), s.Stats().TouchingOverflows)
	assert.Equal(t, 2, s.Stats().PeakTouching)
}

// =============================================================================
// ALLOCATIONS
// =============================================================================

func TestSweepDoesNotAllocate(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	boxes := randomBoxes(rng, 36, 24)
	cfg := DefaultConfig()
	cfg.MaxTouching = 36

	pairs := 0
	s := mustNew(t, cfg, func(a, b Entity) { pairs++ })
	for _, b := range boxes {
		require.NoError(t, s.Insert(b))
	}

	allocs := testing.AllocsPerRun(100, func() {
		_ = s.Sweep()
	})
	assert.Zero(t, allocs)
	assert.Positive(t, s.Stats().Sweeps)
}
