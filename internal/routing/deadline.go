package routing

import (
	"fmt"
	"sort"

	"routesolver/internal/engine"
)

// DeadlineSet returns the non-depot locations whose window opens at 0 and
// closes before the horizon, ordered by ascending deadline. Equal deadlines
// keep index order.
func DeadlineSet(p Problem) []int {
	var nodes []int
	for node, w := range p.TimeWindows {
		if node == p.StartIndex || node == p.EndIndex {
			continue
		}
		if w.Earliest == 0 && w.Latest < Horizon {
			nodes = append(nodes, node)
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		return p.TimeWindows[nodes[i]].Latest < p.TimeWindows[nodes[j]].Latest
	})
	return nodes
}

// injectDeadlineOrdering chains cumul(a) <= cumul(b) over adjacent members of the deadline set.
func injectDeadlineOrdering(b *Model, dim *engine.Dimension, p Problem) error {
	nodes := DeadlineSet(p)
	for i := 0; i+1 < len(nodes); i++ {
		a := dim.CumulVar(b.manager.NodeToIndex(nodes[i]))
		c := dim.CumulVar(b.manager.NodeToIndex(nodes[i+1]))
		if err := b.model.AddLessOrEqual(a, c); err != nil {
			return fmt.Errorf("routing: deadline ordering %d<=%d: %w", nodes[i], nodes[i+1], err)
		}
	}
	return nil
}
