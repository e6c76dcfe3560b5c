package engine

import (
	"fmt"
	"time"
)

type FirstSolutionStrategy int

const (
	// PathCheapestArc extends the route from the start along the cheapest feasible arc.
	PathCheapestArc FirstSolutionStrategy = iota
	// CheapestInsertion inserts the node whose cheapest feasible insertion costs least.
	CheapestInsertion
)

func (s FirstSolutionStrategy) String() string {
	switch s {
	case PathCheapestArc:
		return "PATH_CHEAPEST_ARC"
	case CheapestInsertion:
		return "CHEAPEST_INSERTION"
	}
	return fmt.Sprintf("FirstSolutionStrategy(%d)", int(s))
}

type LocalSearchMetaheuristic int

const (
	// GreedyDescent accepts improving moves and stops at the first local optimum.
	GreedyDescent LocalSearchMetaheuristic = iota
	// GuidedLocalSearch penalizes arcs of local optima and keeps searching until the time limit.
	GuidedLocalSearch
)

func (h LocalSearchMetaheuristic) String() string {
	switch h {
	case GreedyDescent:
		return "GREEDY_DESCENT"
	case GuidedLocalSearch:
		return "GUIDED_LOCAL_SEARCH"
	}
	return fmt.Sprintf("LocalSearchMetaheuristic(%d)", int(h))
}

type SearchParameters struct {
	FirstSolutionStrategy              FirstSolutionStrategy
	LocalSearchMetaheuristic           LocalSearchMetaheuristic
	TimeLimit                          time.Duration
	GuidedLocalSearchLambdaCoefficient float64
	Seed                               int64
}

func DefaultSearchParameters() SearchParameters {
	return SearchParameters{
		FirstSolutionStrategy:              PathCheapestArc,
		LocalSearchMetaheuristic:           GreedyDescent,
		TimeLimit:                          10 * time.Second,
		GuidedLocalSearchLambdaCoefficient: 0.1,
		Seed:                               1,
	}
}

func (p SearchParameters) validate() error {
	if p.TimeLimit <= 0 {
		return fmt.Errorf("%w: time limit must be positive", ErrInvalidParameters)
	}
	switch p.FirstSolutionStrategy {
	case PathCheapestArc, CheapestInsertion:
	default:
		return fmt.Errorf("%w: %v", ErrInvalidParameters, p.FirstSolutionStrategy)
	}
	switch p.LocalSearchMetaheuristic {
	case GreedyDescent, GuidedLocalSearch:
	default:
		return fmt.Errorf("%w: %v", ErrInvalidParameters, p.LocalSearchMetaheuristic)
	}
	if p.GuidedLocalSearchLambdaCoefficient < 0 {
		return fmt.Errorf("%w: negative lambda coefficient", ErrInvalidParameters)
	}
	return nil
}
