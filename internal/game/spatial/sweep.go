package spatial

import "fmt"

// Sweep runs the broad phase for the current tick.
//
// It first applies the sort policy (every SortFrequency sweeps, or right away
// after append inserts), then scans the edge list left to right keeping the
// set of entities whose left edge was seen but not their right edge. Each
// new left edge is tested against that set on Y (and re-confirmed on X, so a
// stale order between throttled sorts never yields a false positive), and the
// handler is called synchronously for every pair passing the collidability
// filter.
//
// The handler may Remove either participant, or any other entity: the active
// set stores edge indices and checks liveness through the list, so removed
// entities are dropped the next time they are met and never reported again
// during this pass.
//
// Sweep returns ErrSweepInProgress when called from inside the handler, and
// an error wrapping ErrTouchingOverflow when the active set was full; in the
// latter case every pair not involving the dropped entities was still reported.
func (s *SweepAndPrune) Sweep() error {
	if s.sweeping {
		return ErrSweepInProgress
	}

	s.sweepCount--
	if s.sweepCount < 1 || s.pendingSort {
		s.sweepCount = s.cfg.SortFrequency
		s.Sort()
	}

	s.sweeping = true
	defer func() { s.sweeping = false }()

	s.touching = s.touching[:0]
	pairs, dropped := 0, 0

	for i := 0; i < len(s.edges); i++ {
		cur := s.edges[i].entity
		if cur == nil {
			continue
		}

		if !s.edges[i].left {
			s.release(cur)
			continue
		}

		pairs += s.pairWithActive(i)

		// The handler may have removed the current entity.
		if s.edges[i].entity == nil {
			continue
		}
		if len(s.touching) == cap(s.touching) {
			dropped++
			s.stats.TouchingOverflows++
			s.observer.TouchingOverflow(cur)
			continue
		}
		s.touching = append(s.touching, int32(i))
		if len(s.touching) > s.stats.PeakTouching {
			s.stats.PeakTouching = len(s.touching)
		}
	}

	s.stats.Sweeps++
	s.stats.Pairs += uint64(pairs)
	s.stats.LastPairs = pairs

	if dropped > 0 {
		return fmt.Errorf("%w: %d entities skipped (capacity %d)", ErrTouchingOverflow, dropped, cap(s.touching))
	}
	return nil
}

// pairWithActive tests the entity owning left edge i against the active set
// and reports confirmed pairs. Returns the number of handler invocations.
func (s *SweepAndPrune) pairWithActive(i int) int {
	pairs := 0
	for j := 0; j < len(s.touching); {
		cur := s.edges[i].entity
		if cur == nil {
			break
		}

		t := s.touching[j]
		other := s.edges[t].entity
		if other == nil {
			s.dropTouching(j)
			continue
		}

		if ShouldReport(cur, other) {
			a, b := cur.Bounds(), other.Bounds()
			if a.OverlapsY(b) && a.OverlapsX(b) {
				pairs++
				s.observer.PairDetected(cur, other)
				if s.handler != nil {
					s.handler(cur, other)
				}
				if s.edges[t].entity == nil {
					s.dropTouching(j)
					continue
				}
			}
		}
		j++
	}
	return pairs
}

// release removes e from the active set, purging dead entries on the way.
func (s *SweepAndPrune) release(e Entity) {
	for j := 0; j < len(s.touching); {
		other := s.edges[s.touching[j]].entity
		if other == nil {
			s.dropTouching(j)
			continue
		}
		if other == e {
			s.dropTouching(j)
			return
		}
		j++
	}
}

// dropTouching removes entry j by swapping in the last one. Order in the
// active set carries no meaning.
func (s *SweepAndPrune) dropTouching(j int) {
	last := len(s.touching) - 1
	s.touching[j] = s.touching[last]
	s.touching = s.touching[:last]
}
