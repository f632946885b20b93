package spatial

// BruteForce tests every unordered pair of entities with the same rules as
// Sweep (open-interval overlap on both axes, collidability filter) and calls
// fn for each hit. Returns the number of pairs reported.
//
// O(n²); it is the reference the sweep is checked against and the baseline
// the benchmarks compare with. fn may be nil to only count.
func BruteForce(entities []Entity, fn CollisionHandler) int {
	pairs := 0
	for i := 0; i < len(entities); i++ {
		a := entities[i]
		if a == nil {
			continue
		}
		ba := a.Bounds()
		for j := i + 1; j < len(entities); j++ {
			b := entities[j]
			if b == nil || !ShouldReport(a, b) {
				continue
			}
			if Overlaps(ba, b.Bounds()) {
				pairs++
				if fn != nil {
					fn(a, b)
				}
			}
		}
	}
	return pairs
}
