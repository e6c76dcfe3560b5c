package routing

import (
	"fmt"

	"routesolver/internal/engine"
)

// Model is a single-vehicle engine model with its cost/transit callback.
type Model struct {
	manager *engine.IndexManager
	model   *engine.Model
	transit int
}

// BuildModel creates the index manager and model and registers
// cost(from,to) = service[from] + matrix[from][to] as both the arc cost
// and the transit of the time dimension.
func BuildModel(p Problem) (*Model, error) {
	n := len(p.TimeMatrix)
	manager, err := engine.NewIndexManager(n, p.StartIndex, p.EndIndex)
	if err != nil {
		return nil, fmt.Errorf("routing: index manager: %w", err)
	}
	service := p.ServiceTimes
	if len(service) != n {
		service = make([]int64, n)
	}
	model := engine.NewModel(manager)
	transit := model.RegisterTransitCallback(func(from, to int64) int64 {
		a, b := manager.IndexToNode(from), manager.IndexToNode(to)
		return service[a] + p.TimeMatrix[a][b]
	})
	if err := model.SetArcCostEvaluatorOfAllVehicles(transit); err != nil {
		return nil, fmt.Errorf("routing: arc cost: %w", err)
	}
	return &Model{manager: manager, model: model, transit: transit}, nil
}
