package routing

import (
	"fmt"

	"routesolver/internal/engine"
)

// configureTimeDimension adds the "Time" dimension, binds the depot cumuls to
// the depot windows and every other location to its own window, and asks the
// finalizer to start as late as possible.
func configureTimeDimension(b *Model, p Problem) (*engine.Dimension, error) {
	if err := b.model.AddDimension(b.transit, MaxWait, Horizon, false, timeDimension); err != nil {
		return nil, fmt.Errorf("routing: add dimension: %w", err)
	}
	dim, err := b.model.Dimension(timeDimension)
	if err != nil {
		return nil, fmt.Errorf("routing: %w", err)
	}
	bind := func(v *engine.IntVar, w Window) {
		if v != nil {
			v.SetRange(w.Earliest, w.Latest)
		}
	}
	bind(dim.CumulVar(b.model.Start(0)), p.TimeWindows[p.StartIndex])
	bind(dim.CumulVar(b.model.End(0)), p.TimeWindows[p.EndIndex])
	for node, w := range p.TimeWindows {
		if node == p.StartIndex || node == p.EndIndex {
			continue
		}
		bind(dim.CumulVar(b.manager.NodeToIndex(node)), w)
	}
	b.model.AddVariableMaximizedByFinalizer(dim.CumulVar(b.model.Start(0)))
	return dim, nil
}
