package engine

import (
	"fmt"
	"math"
)

// dimSchedule holds the compiled, read-only data of one dimension.
type dimSchedule struct {
	dim      *Dimension
	transit  [][]int64
	lo, hi   []int64
	slackMax int64
	prec     []leqConstraint
	// minIn[j] is the smallest transit entering j; valid as a bound only when nonNeg.
	minIn  []int64
	nonNeg bool
}

// evaluator scores and checks paths over the compiled model.
type evaluator struct {
	n          int
	start, end int64
	cost       [][]int64
	dims       []*dimSchedule

	pos []int
	lb  []int64
	ub  []int64
}

// compile evaluates every callback once. A panicking callback becomes an error.
func (m *Model) compile() (ev *evaluator, err error) {
	defer func() {
		if r := recover(); r != nil {
			ev = nil
			err = fmt.Errorf("engine: transit callback panicked: %v", r)
		}
	}()
	n := m.manager.NumIndices()
	ev = &evaluator{
		n:     n,
		start: m.manager.startIndex(),
		end:   m.manager.endIndex,
		pos:   make([]int, n),
		lb:    make([]int64, n),
		ub:    make([]int64, n),
	}
	ev.cost = m.arcMatrix(m.callbacks[m.arcCost])
	for _, d := range m.dims {
		ds := &dimSchedule{
			dim:      d,
			transit:  m.arcMatrix(m.callbacks[d.transit]),
			lo:       make([]int64, n),
			hi:       make([]int64, n),
			slackMax: d.slackMax,
			minIn:    make([]int64, n),
			nonNeg:   true,
		}
		for i, v := range d.cumuls {
			ds.lo[i], ds.hi[i] = v.lo, v.hi
		}
		for _, c := range m.leq {
			if c.a.dim == d {
				ds.prec = append(ds.prec, c)
			}
		}
		for j := 0; j < n; j++ {
			ds.minIn[j] = math.MaxInt64
			if int64(j) == ev.start {
				continue
			}
			for i := 0; i < n; i++ {
				if !ev.arc(int64(i), int64(j)) {
					continue
				}
				t := ds.transit[i][j]
				if t < 0 {
					ds.nonNeg = false
				}
				if t < ds.minIn[j] {
					ds.minIn[j] = t
				}
			}
			if ds.minIn[j] == math.MaxInt64 {
				ds.minIn[j] = 0
			}
		}
		ev.dims = append(ev.dims, ds)
	}
	return ev, nil
}

func (m *Model) arcMatrix(cb TransitCallback) [][]int64 {
	n := m.manager.NumIndices()
	end := m.manager.endIndex
	start := m.manager.startIndex()
	out := make([][]int64, n)
	for i := range out {
		out[i] = make([]int64, n)
		if int64(i) == end {
			continue
		}
		for j := range out[i] {
			if i == j || int64(j) == start {
				continue
			}
			out[i][j] = cb(int64(i), int64(j))
		}
	}
	return out
}

// arc reports whether from -> to can appear on a route.
func (ev *evaluator) arc(from, to int64) bool {
	return from != to && from != ev.end && to != ev.start && !(from == ev.start && to == ev.end && ev.n > 2)
}

func (ev *evaluator) pathCost(path []int64) int64 {
	var c int64
	for p := 0; p+1 < len(path); p++ {
		c += ev.cost[path[p]][path[p+1]]
	}
	return c
}

func (ev *evaluator) index(path []int64) {
	for i := range ev.pos {
		ev.pos[i] = -1
	}
	for p, i := range path {
		ev.pos[i] = p
	}
}

// feasible checks every dimension of path. With prefix set, path is the
// beginning of a route and the indices not on it must still fit after its last
// position.
func (ev *evaluator) feasible(path []int64, prefix bool) bool {
	ev.index(path)
	for _, ds := range ev.dims {
		if !ds.least(path, ev.pos, ds.lo, ev.lb) {
			return false
		}
		if prefix && !ds.tailFits(path, ev.pos, ev.lb) {
			return false
		}
	}
	return true
}

// least computes in lb the least cumul of every path position satisfying
// transit, slack, window and precedence constraints, using lo as the lower
// bounds. It reports false when no schedule exists. This is Bellman-Ford on
// the difference constraints, so it settles within len(path)+1 rounds unless
// a positive cycle exists.
func (ds *dimSchedule) least(path []int64, pos []int, lo, lb []int64) bool {
	k := len(path)
	for p, i := range path {
		lb[p] = lo[i]
	}
	for round := 0; round <= k; round++ {
		changed := false
		for p := 0; p+1 < k; p++ {
			if v := lb[p] + ds.transit[path[p]][path[p+1]]; v > lb[p+1] {
				lb[p+1] = v
				changed = true
			}
		}
		for p := k - 2; p >= 0; p-- {
			if v := lb[p+1] - ds.transit[path[p]][path[p+1]] - ds.slackMax; v > lb[p] {
				lb[p] = v
				changed = true
			}
		}
		for _, c := range ds.prec {
			pa, pb := pos[c.a.index], pos[c.b.index]
			if pa < 0 || pb < 0 {
				continue
			}
			if lb[pa] > lb[pb] {
				lb[pb] = lb[pa]
				changed = true
			}
		}
		for p, i := range path {
			if lb[p] > ds.hi[i] {
				return false
			}
		}
		if !changed {
			return true
		}
	}
	return false
}

// greatest is the mirror of least: the greatest cumul of every position.
func (ds *dimSchedule) greatest(path []int64, pos []int, ub []int64) bool {
	k := len(path)
	for p, i := range path {
		ub[p] = ds.hi[i]
	}
	for round := 0; round <= k; round++ {
		changed := false
		for p := 0; p+1 < k; p++ {
			if v := ub[p] + ds.transit[path[p]][path[p+1]] + ds.slackMax; v < ub[p+1] {
				ub[p+1] = v
				changed = true
			}
		}
		for p := k - 2; p >= 0; p-- {
			if v := ub[p+1] - ds.transit[path[p]][path[p+1]]; v < ub[p] {
				ub[p] = v
				changed = true
			}
		}
		for _, c := range ds.prec {
			pa, pb := pos[c.a.index], pos[c.b.index]
			if pa < 0 || pb < 0 {
				continue
			}
			if ub[pb] < ub[pa] {
				ub[pa] = ub[pb]
				changed = true
			}
		}
		for p, i := range path {
			if ub[p] < ds.lo[i] {
				return false
			}
		}
		if !changed {
			return true
		}
	}
	return false
}

// tailFits rejects a prefix when some index off the path can no longer be
// reached inside its window, directly or through a precedence it owes.
// Only sound for non-negative transits.
func (ds *dimSchedule) tailFits(path []int64, pos []int, lb []int64) bool {
	if !ds.nonNeg || len(path) == 0 {
		return true
	}
	last := lb[len(path)-1]
	for j := range ds.hi {
		if pos[j] >= 0 || int64(j) == path[0] {
			continue
		}
		if last+ds.minIn[j] > ds.hi[j] {
			return false
		}
	}
	for _, c := range ds.prec {
		pb := pos[c.b.index]
		if pos[c.a.index] >= 0 || pb < 0 {
			continue
		}
		// a comes after the last position, so cumul(a) >= cumul(b) + d.
		d := ds.minIn[c.a.index]
		for p := pb; p+1 < len(path); p++ {
			d += ds.transit[path[p]][path[p+1]]
		}
		if d > 0 {
			return false
		}
	}
	return true
}

// owes reports whether placing j next would leave behind an index that must
// not be reached later than j.
func (ev *evaluator) owes(j int64, visited []bool) bool {
	for _, ds := range ev.dims {
		if !ds.nonNeg {
			continue
		}
		for _, c := range ds.prec {
			if c.b.index == j && !visited[c.a.index] && ds.minIn[c.a.index] > 0 {
				return true
			}
		}
	}
	return false
}

// schedule fixes the cumul values of a complete route: finalizer variables are
// pushed to their greatest feasible value, everything else takes its least.
func (ev *evaluator) schedule(path []int64, finalizers []*IntVar) (map[*Dimension][]int64, bool) {
	ev.index(path)
	out := make(map[*Dimension][]int64, len(ev.dims))
	for _, ds := range ev.dims {
		lo := append([]int64(nil), ds.lo...)
		pinned := false
		for _, v := range finalizers {
			if v.dim != ds.dim {
				continue
			}
			if !pinned {
				if !ds.greatest(path, ev.pos, ev.ub) {
					return nil, false
				}
				pinned = true
			}
			if p := ev.pos[v.index]; p >= 0 && ev.ub[p] > lo[v.index] {
				lo[v.index] = ev.ub[p]
			}
		}
		if !ds.least(path, ev.pos, lo, ev.lb) {
			return nil, false
		}
		vals := make([]int64, ev.n)
		for p, i := range path {
			vals[i] = ev.lb[p]
		}
		out[ds.dim] = vals
	}
	return out, true
}
