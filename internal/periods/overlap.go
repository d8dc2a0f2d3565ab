package periods

import "sort"

// resolveLayer applies the last-writer-wins-by-start-time rule with an
// interval sweep: all period boundaries are sorted, and between each pair
// of consecutive boundaries the active period with the latest start date
// governs. When the winner ends, an earlier still-active period resumes
// for its remaining duration. Continuous numbers are prorated onto the
// emitted sub-spans by duration.
func resolveLayer(segs []segment) []segment {
	return sweep(segs, func(active []segment) segment {
		best := active[0]
		for _, s := range active[1:] {
			if s.start > best.start || (s.start == best.start && s.seq > best.seq) {
				best = s
			}
		}
		return best
	})
}

// resolvePriority resolves overlaps by an explicit category priority
// list; categories earlier in the list win, categories absent from the
// list rank after all listed ones. Among equal priorities the later
// start governs.
func resolvePriority(segs []segment, priority []string) []segment {
	rank := make(map[string]int, len(priority))
	for i, cat := range priority {
		rank[cat] = i
	}
	rankOf := func(cat string) int {
		if r, ok := rank[cat]; ok {
			return r
		}
		return len(priority)
	}
	return sweep(segs, func(active []segment) segment {
		best := active[0]
		for _, s := range active[1:] {
			rs, rb := rankOf(s.category), rankOf(best.category)
			switch {
			case rs < rb:
				best = s
			case rs == rb && (s.start > best.start || (s.start == best.start && s.seq > best.seq)):
				best = s
			}
		}
		return best
	})
}

// sweep partitions time at every segment boundary and emits, for each
// elementary span, the winner chosen by pick from the spans active there.
// Adjacent spans with the same winning segment are re-joined so a period
// interrupted and resumed keeps minimal fragmentation.
func sweep(segs []segment, pick func(active []segment) segment) []segment {
	if len(segs) <= 1 {
		return segs
	}

	boundarySet := make(map[int64]struct{}, 2*len(segs))
	for _, s := range segs {
		boundarySet[s.start] = struct{}{}
		boundarySet[s.stop] = struct{}{}
	}
	boundaries := make([]int64, 0, len(boundarySet))
	for b := range boundarySet {
		boundaries = append(boundaries, b)
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })

	var out []segment
	active := make([]segment, 0, len(segs))
	for i := 0; i+1 < len(boundaries); i++ {
		lo, hi := boundaries[i], boundaries[i+1]
		active = active[:0]
		for _, s := range segs {
			if s.start <= lo && s.stop >= hi {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			continue
		}
		winner := pick(active)

		if n := len(out); n > 0 && out[n-1].stop == lo && out[n-1].seq == winner.seq && out[n-1].category == winner.category {
			out[n-1].stop = hi
			out[n-1].number += prorated(winner, lo, hi)
			continue
		}
		out = append(out, segment{
			start:    lo,
			stop:     hi,
			category: winner.category,
			number:   prorated(winner, lo, hi),
			seq:      winner.seq,
		})
	}
	return out
}

// prorated returns the share of a segment's continuous number falling
// into [lo, hi), weighted by duration.
func prorated(s segment, lo, hi int64) float64 {
	if s.number == 0 || s.duration() == 0 {
		return 0
	}
	return s.number * float64(hi-lo) / float64(s.duration())
}
