package collision

import (
	"sort"

	"github.com/san-kum/rigidsim/internal/geom"
)

// Proxy is a broad-phase entry. ID is caller defined and is echoed in pairs.
type Proxy struct {
	ID   int
	Key  uint64
	AABB geom.AABB
}

// Pair holds two proxy IDs ordered so that the proxy with the smaller Key comes first.
type Pair struct {
	A, B int
	Key  PairKey
}

// SweepAndPrune reports every pair of proxies whose boxes overlap. The
// result is sorted by PairKey so it does not depend on proxy order.
func SweepAndPrune(proxies []Proxy, accept func(a, b int) bool) []Pair {
	sorted := make([]Proxy, len(proxies))
	copy(sorted, proxies)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].AABB.Min[0] != sorted[j].AABB.Min[0] {
			return sorted[i].AABB.Min[0] < sorted[j].AABB.Min[0]
		}
		return sorted[i].Key < sorted[j].Key
	})

	var pairs []Pair
	for i := range sorted {
		a := &sorted[i]
		for j := i + 1; j < len(sorted); j++ {
			b := &sorted[j]
			if b.AABB.Min[0] > a.AABB.Max[0] {
				break
			}
			if !a.AABB.Overlaps(b.AABB) {
				continue
			}
			if accept != nil && !accept(a.ID, b.ID) {
				continue
			}
			p := Pair{A: a.ID, B: b.ID, Key: NewPairKey(a.Key, b.Key)}
			if b.Key < a.Key {
				p.A, p.B = b.ID, a.ID
			}
			pairs = append(pairs, p)
		}
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key.Less(pairs[j].Key) })
	return pairs
}
