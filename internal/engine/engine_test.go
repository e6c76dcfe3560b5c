package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fixture struct {
	mgr   *IndexManager
	model *Model
	time  *Dimension
}

func newFixture(t *testing.T, matrix [][]int64, windows [][2]int64, slack int64, start, end int) *fixture {
	t.Helper()
	mgr, err := NewIndexManager(len(matrix), start, end)
	require.NoError(t, err)
	m := NewModel(mgr)
	cb := m.RegisterTransitCallback(func(from, to int64) int64 {
		return matrix[mgr.IndexToNode(from)][mgr.IndexToNode(to)]
	})
	require.NoError(t, m.SetArcCostEvaluatorOfAllVehicles(cb))
	require.NoError(t, m.AddDimension(cb, slack, 86400, false, "Time"))
	dim, err := m.Dimension("Time")
	require.NoError(t, err)
	for node, w := range windows {
		dim.CumulVar(mgr.NodeToIndex(node)).SetRange(w[0], w[1])
	}
	if start == end {
		w := windows[end]
		dim.CumulVar(m.End(0)).SetRange(w[0], w[1])
	}
	return &fixture{mgr: mgr, model: m, time: dim}
}

func params(h LocalSearchMetaheuristic) SearchParameters {
	p := DefaultSearchParameters()
	p.LocalSearchMetaheuristic = h
	p.TimeLimit = 500 * time.Millisecond
	return p
}

func walk(f *fixture, a *Assignment) []int {
	var nodes []int
	i := f.model.Start(0)
	for {
		nodes = append(nodes, f.mgr.IndexToNode(i))
		if f.model.IsEnd(i) {
			return nodes
		}
		i = a.Next(i)
	}
}

func wide(n int) [][2]int64 {
	w := make([][2]int64, n)
	for i := range w {
		w[i] = [2]int64{0, 86400}
	}
	return w
}

func TestIndexManager(t *testing.T) {
	mgr, err := NewIndexManager(3, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 4, mgr.NumIndices())
	require.Equal(t, 0, mgr.IndexToNode(3))
	require.Equal(t, int64(2), mgr.NodeToIndex(2))
	require.Equal(t, -1, mgr.IndexToNode(5))
	require.Equal(t, int64(-1), mgr.NodeToIndex(3))

	mgr, err = NewIndexManager(3, 0, 2)
	require.NoError(t, err)
	require.Equal(t, 3, mgr.NumIndices())

	_, err = NewIndexManager(3, 0, 3)
	require.Error(t, err)
	_, err = NewIndexManager(0, 0, 0)
	require.ErrorIs(t, err, ErrEmptyModel)
}

func TestDimensionLookup(t *testing.T) {
	f := newFixture(t, [][]int64{{0, 1}, {1, 0}}, wide(2), 0, 0, 1)
	_, err := f.model.Dimension("Distance")
	require.ErrorIs(t, err, ErrUnknownDimension)
	require.Nil(t, f.time.CumulVar(-1))
	require.Nil(t, f.time.CumulVar(2))
	require.Error(t, f.model.AddDimension(0, 0, 10, false, "Time"))
}

func TestPathCheapestArcFollowsLine(t *testing.T) {
	pos := []int64{0, 10, 20, 30}
	matrix := make([][]int64, len(pos))
	for i := range matrix {
		matrix[i] = make([]int64, len(pos))
		for j := range matrix[i] {
			d := pos[i] - pos[j]
			if d < 0 {
				d = -d
			}
			matrix[i][j] = d
		}
	}
	f := newFixture(t, matrix, wide(4), 3600, 0, 3)
	a, err := f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, walk(f, a))
	require.Equal(t, int64(30), a.ObjectiveValue())
	require.Equal(t, int64(20), a.Value(f.time.CumulVar(2)))
}

func TestScheduleWaitsWithinSlack(t *testing.T) {
	matrix := [][]int64{{0, 5}, {5, 0}}
	windows := [][2]int64{{0, 0}, {100, 200}}

	f := newFixture(t, matrix, windows, 3600, 0, 1)
	a, err := f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.NoError(t, err)
	require.Equal(t, int64(0), a.Value(f.time.CumulVar(0)))
	require.Equal(t, int64(100), a.Value(f.time.CumulVar(1)))

	f = newFixture(t, matrix, windows, 50, 0, 1)
	_, err = f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestFinalizerMaximizesStart(t *testing.T) {
	matrix := [][]int64{{0, 5}, {5, 0}}
	windows := [][2]int64{{0, 100}, {0, 50}}

	f := newFixture(t, matrix, windows, 3600, 0, 1)
	a, err := f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.NoError(t, err)
	require.Equal(t, int64(0), a.Value(f.time.CumulVar(0)))
	require.Equal(t, int64(5), a.Value(f.time.CumulVar(1)))

	f = newFixture(t, matrix, windows, 3600, 0, 1)
	f.model.AddVariableMaximizedByFinalizer(f.time.CumulVar(f.model.Start(0)))
	a, err = f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.NoError(t, err)
	require.Equal(t, int64(45), a.Value(f.time.CumulVar(0)))
	require.Equal(t, int64(50), a.Value(f.time.CumulVar(1)))
}

func TestLessOrEqualForcesOrder(t *testing.T) {
	matrix := [][]int64{
		{0, 10, 1, 10},
		{10, 0, 10, 1},
		{10, 1, 0, 10},
		{10, 10, 10, 0},
	}
	f := newFixture(t, matrix, wide(4), 3600, 0, 3)
	a, err := f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.NoError(t, err)
	require.Equal(t, []int{0, 2, 1, 3}, walk(f, a))

	f = newFixture(t, matrix, wide(4), 3600, 0, 3)
	require.NoError(t, f.model.AddLessOrEqual(f.time.CumulVar(1), f.time.CumulVar(2)))
	a, err = f.model.SolveWithParameters(context.Background(), params(GuidedLocalSearch))
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2, 3}, walk(f, a))
	require.LessOrEqual(t, a.Value(f.time.CumulVar(1)), a.Value(f.time.CumulVar(2)))
}

func TestLessOrEqualChainAgainstCheapestArcs(t *testing.T) {
	// Nodes on a line: the cheapest arcs walk 1..6, the chain demands 6..1.
	n := 8
	matrix := make([][]int64, n)
	for i := range matrix {
		matrix[i] = make([]int64, n)
		for j := range matrix[i] {
			d := int64(i-j) * 10
			if d < 0 {
				d = -d
			}
			matrix[i][j] = d
		}
	}
	f := newFixture(t, matrix, wide(n), 3600, 0, n-1)
	for node := n - 2; node > 1; node-- {
		a := f.time.CumulVar(f.mgr.NodeToIndex(node))
		b := f.time.CumulVar(f.mgr.NodeToIndex(node - 1))
		require.NoError(t, f.model.AddLessOrEqual(a, b))
	}
	a, err := f.model.SolveWithParameters(context.Background(), params(GuidedLocalSearch))
	require.NoError(t, err)
	route := walk(f, a)
	require.Equal(t, []int{0, 6, 5, 4, 3, 2, 1, 7}, route)
	for p := 1; p+2 < len(route); p++ {
		require.LessOrEqual(t,
			a.Value(f.time.CumulVar(f.mgr.NodeToIndex(route[p]))),
			a.Value(f.time.CumulVar(f.mgr.NodeToIndex(route[p+1]))))
	}
}

func TestWindowViolationHasNoSolution(t *testing.T) {
	matrix := [][]int64{{0, 10, 3}, {10, 0, 3}, {3, 3, 0}}
	windows := [][2]int64{{0, 0}, {0, 1}, {0, 86400}}
	f := newFixture(t, matrix, windows, 3600, 0, 2)
	_, err := f.model.SolveWithParameters(context.Background(), params(GuidedLocalSearch))
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestEmptyDomainHasNoSolution(t *testing.T) {
	f := newFixture(t, [][]int64{{0, 1}, {1, 0}}, wide(2), 0, 0, 1)
	f.time.CumulVar(1).SetRange(10, 5)
	_, err := f.model.SolveWithParameters(context.Background(), params(GreedyDescent))
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestLocalSearchImprovesGreedyRoute(t *testing.T) {
	matrix := [][]int64{
		{0, 1, 2, 50},
		{50, 0, 10, 1},
		{50, 1, 0, 10},
		{50, 50, 50, 0},
	}
	for _, h := range []LocalSearchMetaheuristic{GreedyDescent, GuidedLocalSearch} {
		t.Run(h.String(), func(t *testing.T) {
			f := newFixture(t, matrix, wide(4), 3600, 0, 3)
			a, err := f.model.SolveWithParameters(context.Background(), params(h))
			require.NoError(t, err)
			require.Equal(t, []int{0, 2, 1, 3}, walk(f, a))
			require.Equal(t, int64(21), a.Stats().FirstCost)
			require.Equal(t, int64(4), a.Stats().BestCost)
			require.Equal(t, int64(4), a.ObjectiveValue())
		})
	}
}

func TestCheapestInsertionBuildsRoute(t *testing.T) {
	f := newFixture(t, [][]int64{
		{0, 2, 4, 6},
		{2, 0, 2, 4},
		{4, 2, 0, 2},
		{6, 4, 2, 0},
	}, wide(4), 3600, 0, 0)
	p := params(GreedyDescent)
	p.FirstSolutionStrategy = CheapestInsertion
	a, err := f.model.SolveWithParameters(context.Background(), p)
	require.NoError(t, err)
	route := walk(f, a)
	require.Len(t, route, 5)
	require.Equal(t, 0, route[0])
	require.Equal(t, 0, route[4])
	require.ElementsMatch(t, []int{1, 2, 3}, route[1:4])
	require.Equal(t, int64(12), a.ObjectiveValue())
}

func TestCancelledContextStopsSearch(t *testing.T) {
	f := newFixture(t, [][]int64{{0, 1, 1}, {1, 0, 1}, {1, 1, 0}}, wide(3), 3600, 0, 2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.model.SolveWithParameters(ctx, params(GuidedLocalSearch))
	require.ErrorIs(t, err, context.Canceled)
}

func TestGuidedLocalSearchHonoursDeadline(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	n := 12
	matrix := make([][]int64, n)
	for i := range matrix {
		matrix[i] = make([]int64, n)
		for j := range matrix[i] {
			if i != j {
				matrix[i][j] = 1 + rng.Int63n(100)
			}
		}
	}
	f := newFixture(t, matrix, wide(n), 3600, 0, 0)
	p := params(GuidedLocalSearch)
	p.TimeLimit = time.Minute
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	started := time.Now()
	a, err := f.model.SolveWithParameters(ctx, p)
	require.NoError(t, err)
	require.Less(t, time.Since(started), 10*time.Second)
	require.LessOrEqual(t, a.Stats().BestCost, a.Stats().FirstCost)
	require.Len(t, walk(f, a), n+1)
}

func TestInvalidParameters(t *testing.T) {
	f := newFixture(t, [][]int64{{0, 1}, {1, 0}}, wide(2), 0, 0, 1)
	p := DefaultSearchParameters()
	p.TimeLimit = 0
	_, err := f.model.SolveWithParameters(context.Background(), p)
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestCallbackPanicBecomesError(t *testing.T) {
	mgr, err := NewIndexManager(2, 0, 1)
	require.NoError(t, err)
	m := NewModel(mgr)
	cb := m.RegisterTransitCallback(func(from, to int64) int64 { panic("boom") })
	require.NoError(t, m.SetArcCostEvaluatorOfAllVehicles(cb))
	_, err = m.SolveWithParameters(context.Background(), DefaultSearchParameters())
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrNoSolution))
	require.Contains(t, err.Error(), "panicked")
}
