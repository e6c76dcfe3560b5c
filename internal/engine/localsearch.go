package engine

import (
	"math/rand"
)

// lsState is the mutable state of the improvement phase.
type lsState struct {
	s      *search
	rng    *rand.Rand
	pen    [][]int64
	lambda float64
	cur    []int64
	curAug float64
	buf    []int64
}

func (ls *lsState) augmented(path []int64) float64 {
	c := float64(ls.s.ev.pathCost(path))
	if ls.lambda == 0 {
		return c
	}
	var p int64
	for k := 0; k+1 < len(path); k++ {
		p += ls.pen[path[k]][path[k+1]]
	}
	return c + ls.lambda*float64(p)
}

// lowerBound sums the cheapest arc entering every index after the start.
func (ev *evaluator) lowerBound(route []int64) int64 {
	var lb int64
	for _, j := range route[1:] {
		best, seen := int64(0), false
		for i := 0; i < ev.n; i++ {
			if !ev.arc(int64(i), j) {
				continue
			}
			if c := ev.cost[i][j]; !seen || c < best {
				best, seen = c, true
			}
		}
		lb += best
	}
	return lb
}

// improve runs local search from a feasible route and returns the best route seen.
func (s *search) improve(route []int64) []int64 {
	best := append([]int64(nil), route...)
	bestCost := s.ev.pathCost(best)
	s.stats.LowerBound = s.ev.lowerBound(route)
	if len(s.inner) < 2 || bestCost <= s.stats.LowerBound {
		return best
	}
	ls := &lsState{
		s:   s,
		rng: rand.New(rand.NewSource(s.params.Seed)),
		cur: append([]int64(nil), route...),
		buf: make([]int64, len(route)),
	}
	ls.curAug = ls.augmented(ls.cur)
	for !s.stop() {
		s.stats.Iterations++
		if ls.descend() {
			s.stats.Improvements++
			if c := s.ev.pathCost(ls.cur); c < bestCost {
				bestCost = c
				copy(best, ls.cur)
				if bestCost <= s.stats.LowerBound {
					break
				}
			}
			continue
		}
		if s.params.LocalSearchMetaheuristic != GuidedLocalSearch {
			break
		}
		if !ls.penalize() {
			break
		}
		s.stats.Penalties++
	}
	return best
}

// penalize raises the penalty of the arc of the current route with the highest
// utility cost/(1+penalty). The first call fixes lambda.
func (ls *lsState) penalize() bool {
	ev := ls.s.ev
	if ls.pen == nil {
		arcs := len(ls.cur) - 1
		c := ev.pathCost(ls.cur)
		ls.lambda = ls.s.params.GuidedLocalSearchLambdaCoefficient * float64(c) / float64(arcs)
		if ls.lambda <= 0 {
			return false
		}
		ls.pen = make([][]int64, ev.n)
		for i := range ls.pen {
			ls.pen[i] = make([]int64, ev.n)
		}
	}
	bi, bj, bu := int64(-1), int64(-1), -1.0
	for k := 0; k+1 < len(ls.cur); k++ {
		i, j := ls.cur[k], ls.cur[k+1]
		u := float64(ev.cost[i][j]) / float64(1+ls.pen[i][j])
		if u > bu {
			bi, bj, bu = i, j, u
		}
	}
	if bi < 0 {
		return false
	}
	ls.pen[bi][bj]++
	ls.curAug = ls.augmented(ls.cur)
	return true
}

// descend applies the first improving feasible move, in augmented cost, out of
// relocate, or-opt, 2-opt and exchange neighbourhoods.
func (ls *lsState) descend() bool {
	k := len(ls.cur)
	off := ls.rng.Intn(k - 2)
	// relocate (segLen 1) and or-opt (segLen 2, 3)
	for segLen := 1; segLen <= 3; segLen++ {
		for r := 0; r < k-2; r++ {
			i := 1 + (r+off)%(k-2)
			if i+segLen > k-1 {
				continue
			}
			for q := 1; q < k-segLen; q++ {
				if q == i {
					continue
				}
				ls.relocate(i, segLen, q)
				if ls.accept() {
					return true
				}
				if ls.s.stop() {
					return false
				}
			}
		}
	}
	// 2-opt
	for r := 0; r < k-2; r++ {
		i := 1 + (r+off)%(k-2)
		for j := i + 1; j <= k-2; j++ {
			copy(ls.buf, ls.cur)
			for a, b := i, j; a < b; a, b = a+1, b-1 {
				ls.buf[a], ls.buf[b] = ls.buf[b], ls.buf[a]
			}
			if ls.accept() {
				return true
			}
		}
		if ls.s.stop() {
			return false
		}
	}
	// exchange
	for r := 0; r < k-2; r++ {
		i := 1 + (r+off)%(k-2)
		for j := i + 2; j <= k-2; j++ {
			copy(ls.buf, ls.cur)
			ls.buf[i], ls.buf[j] = ls.buf[j], ls.buf[i]
			if ls.accept() {
				return true
			}
		}
		if ls.s.stop() {
			return false
		}
	}
	return false
}

// relocate writes into buf the current route with cur[i:i+n] moved so that it
// starts at position q of the route without the segment.
func (ls *lsState) relocate(i, n, q int) {
	seg := ls.cur[i : i+n]
	w := 0
	put := func(x int64) {
		ls.buf[w] = x
		w++
	}
	rest := 0
	for p, x := range ls.cur {
		if p >= i && p < i+n {
			continue
		}
		if rest == q {
			for _, y := range seg {
				put(y)
			}
		}
		put(x)
		rest++
	}
}

func (ls *lsState) accept() bool {
	ls.s.stats.Moves++
	aug := ls.augmented(ls.buf)
	if aug >= ls.curAug-1e-9 {
		return false
	}
	if !ls.s.ev.feasible(ls.buf, false) {
		return false
	}
	copy(ls.cur, ls.buf)
	ls.curAug = aug
	return true
}
