package engine

import (
	"context"
	"sort"
	"time"
)

// search carries the state of one SolveWithParameters call.
type search struct {
	ctx      context.Context
	deadline time.Time
	params   SearchParameters
	ev       *evaluator
	inner    []int64
	stats    Stats
	halted   bool
}

// stop reports whether the time limit passed or ctx was cancelled.
func (s *search) stop() bool {
	if s.halted {
		return true
	}
	if s.ctx.Err() != nil || !time.Now().Before(s.deadline) {
		s.halted = true
	}
	return s.halted
}

func (s *search) firstSolution() []int64 {
	switch s.params.FirstSolutionStrategy {
	case CheapestInsertion:
		return s.cheapestInsertion()
	default:
		return s.pathCheapestArc()
	}
}

// pathCheapestArc grows the route from the start, always trying the cheapest
// arc out of the last index first and backtracking out of dead ends.
func (s *search) pathCheapestArc() []int64 {
	path := make([]int64, 1, s.ev.n)
	path[0] = s.ev.start
	visited := make([]bool, s.ev.n)
	visited[s.ev.start] = true
	visited[s.ev.end] = true
	route, ok := s.extend(path, visited, len(s.inner))
	if !ok {
		return nil
	}
	return append([]int64(nil), route...)
}

func (s *search) extend(path []int64, visited []bool, remaining int) ([]int64, bool) {
	if s.stop() {
		return nil, false
	}
	s.stats.Explored++
	if remaining == 0 {
		full := append(path, s.ev.end)
		if s.ev.feasible(full, false) {
			return full, true
		}
		return nil, false
	}
	last := path[len(path)-1]
	cands := make([]int64, 0, remaining)
	for _, j := range s.inner {
		if !visited[j] && !s.ev.owes(j, visited) {
			cands = append(cands, j)
		}
	}
	cost := s.ev.cost[last]
	sort.SliceStable(cands, func(a, b int) bool { return cost[cands[a]] < cost[cands[b]] })
	for _, j := range cands {
		path = append(path, j)
		visited[j] = true
		if s.ev.feasible(path, true) {
			if route, ok := s.extend(path, visited, remaining-1); ok {
				return route, true
			}
		}
		visited[j] = false
		path = path[:len(path)-1]
		if s.stop() {
			return nil, false
		}
	}
	return nil, false
}

type insertion struct {
	node  int64
	at    int
	delta int64
}

// cheapestInsertion starts from start -> end and repeatedly performs the
// cheapest feasible insertion of any unrouted index. It does not backtrack.
func (s *search) cheapestInsertion() []int64 {
	route := []int64{s.ev.start, s.ev.end}
	unrouted := append([]int64(nil), s.inner...)
	cand := make([]int64, 0, s.ev.n)
	for len(unrouted) > 0 {
		if s.stop() {
			return nil
		}
		var opts []insertion
		for _, j := range unrouted {
			for at := 1; at < len(route); at++ {
				a, b := route[at-1], route[at]
				d := s.ev.cost[a][j] + s.ev.cost[j][b] - s.ev.cost[a][b]
				opts = append(opts, insertion{node: j, at: at, delta: d})
			}
		}
		sort.SliceStable(opts, func(a, b int) bool { return opts[a].delta < opts[b].delta })
		placed := false
		for _, o := range opts {
			s.stats.Explored++
			cand = append(cand[:0], route[:o.at]...)
			cand = append(cand, o.node)
			cand = append(cand, route[o.at:]...)
			if !s.ev.feasible(cand, false) {
				continue
			}
			route = append([]int64(nil), cand...)
			for k, j := range unrouted {
				if j == o.node {
					unrouted = append(unrouted[:k], unrouted[k+1:]...)
					break
				}
			}
			placed = true
			break
		}
		if !placed {
			return nil
		}
	}
	if !s.ev.feasible(route, false) {
		return nil
	}
	return route
}
