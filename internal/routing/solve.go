package routing

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"routesolver/internal/engine"
)

// Solver runs the fixed search policy: path cheapest arc, then guided local
// search for TimeLimit.
type Solver struct {
	params engine.SearchParameters
}

func NewSolver() *Solver {
	p := engine.DefaultSearchParameters()
	p.FirstSolutionStrategy = engine.PathCheapestArc
	p.LocalSearchMetaheuristic = engine.GuidedLocalSearch
	p.TimeLimit = TimeLimit
	return &Solver{params: p}
}

// Parameters returns the search policy the solver applies.
func (s *Solver) Parameters() engine.SearchParameters { return s.params }

// Solve builds the model for p and searches it once. A malformed p yields a
// *RequestError; an infeasible p, or one not solved within the budget, yields
// a Result with StatusNoSolution and a nil error.
func (s *Solver) Solve(ctx context.Context, p Problem) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	b, err := BuildModel(p)
	if err != nil {
		return Result{}, err
	}
	dim, err := configureTimeDimension(b, p)
	if err != nil {
		return Result{}, err
	}
	if err := injectDeadlineOrdering(b, dim, p); err != nil {
		return Result{}, err
	}

	sol, err := b.model.SolveWithParameters(ctx, s.params)
	if errors.Is(err, engine.ErrNoSolution) {
		return noSolution(), nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("routing: solve: %w", err)
	}
	return extract(b, dim, sol), nil
}

// extract walks the route from the start to the end, terminal included.
func extract(b *Model, dim *engine.Dimension, sol *engine.Assignment) Result {
	res := Result{
		Status:   StatusSolved,
		Arrivals: map[string]int64{},
		Cost:     sol.ObjectiveValue(),
		Stats:    sol.Stats(),
	}
	index := b.model.Start(0)
	res.Departure = sol.Value(dim.CumulVar(index))
	for {
		node := b.manager.IndexToNode(index)
		res.OrderedNodes = append(res.OrderedNodes, node)
		res.Arrivals[strconv.Itoa(node)] = sol.Value(dim.CumulVar(index))
		if b.model.IsEnd(index) {
			return res
		}
		index = sol.Next(index)
	}
}

// Solve runs p with the default solver.
func Solve(ctx context.Context, p Problem) (Result, error) {
	return NewSolver().Solve(ctx, p)
}
