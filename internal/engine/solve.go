package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Stats describes what a solve did.
type Stats struct {
	Explored     int64 `json:"explored"`
	Iterations   int64 `json:"iterations"`
	Moves        int64 `json:"moves"`
	Improvements int64 `json:"improvements"`
	Penalties    int64 `json:"penalties"`
	FirstCost    int64 `json:"first_cost"`
	BestCost     int64 `json:"best_cost"`
	LowerBound   int64 `json:"lower_bound"`
	ElapsedMs    int64 `json:"elapsed_ms"`
}

// Assignment is a solved route together with its cumul values.
type Assignment struct {
	next      []int64
	values    map[*Dimension][]int64
	objective int64
	stats     Stats
}

// Value returns the value of a cumul variable in the solution.
func (a *Assignment) Value(v *IntVar) int64 {
	if v == nil {
		return 0
	}
	vals, ok := a.values[v.dim]
	if !ok || v.index >= int64(len(vals)) {
		return 0
	}
	return vals[v.index]
}

// Next returns the index following index on the route. The end index maps to itself.
func (a *Assignment) Next(index int64) int64 {
	if index < 0 || index >= int64(len(a.next)) {
		return index
	}
	return a.next[index]
}

func (a *Assignment) ObjectiveValue() int64 { return a.objective }

func (a *Assignment) Stats() Stats { return a.stats }

// SolveWithParameters builds a first solution, improves it until the time limit
// and returns the best route found. ErrNoSolution means no feasible route was
// found within the limit, whether or not one exists.
func (m *Model) SolveWithParameters(ctx context.Context, params SearchParameters) (*Assignment, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	if m.arcCost < 0 {
		return nil, errors.New("engine: arc cost evaluator not set")
	}
	started := time.Now()
	if m.empty {
		return nil, ErrNoSolution
	}
	ev, err := m.compile()
	if err != nil {
		return nil, err
	}
	s := &search{
		ctx:      ctx,
		deadline: started.Add(params.TimeLimit),
		params:   params,
		ev:       ev,
	}
	for i := 0; i < ev.n; i++ {
		if int64(i) != ev.start && int64(i) != ev.end {
			s.inner = append(s.inner, int64(i))
		}
	}

	route := s.firstSolution()
	if route == nil {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("engine: search interrupted: %w", err)
		}
		return nil, ErrNoSolution
	}
	s.stats.FirstCost = ev.pathCost(route)
	route = s.improve(route)
	s.stats.BestCost = ev.pathCost(route)

	values, ok := ev.schedule(route, m.finalizers)
	if !ok {
		return nil, fmt.Errorf("engine: route lost feasibility while scheduling")
	}
	next := make([]int64, ev.n)
	for p := 0; p+1 < len(route); p++ {
		next[route[p]] = route[p+1]
	}
	next[ev.end] = ev.end
	s.stats.ElapsedMs = time.Since(started).Milliseconds()
	return &Assignment{
		next:      next,
		values:    values,
		objective: s.stats.BestCost,
		stats:     s.stats,
	}, nil
}
