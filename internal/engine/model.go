package engine

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyModel        = errors.New("engine: model has no nodes")
	ErrNoSolution        = errors.New("engine: no solution found")
	ErrUnknownDimension  = errors.New("engine: unknown dimension")
	ErrInvalidParameters = errors.New("engine: invalid search parameters")
)

// TransitCallback returns the transit (or cost) of the arc from -> to, in index space.
type TransitCallback func(from, to int64) int64

// Model is a single-vehicle routing model over the indices of an IndexManager.
type Model struct {
	manager    *IndexManager
	callbacks  []TransitCallback
	arcCost    int
	dims       []*Dimension
	dimByName  map[string]*Dimension
	leq        []leqConstraint
	finalizers []*IntVar
	empty      bool // some variable domain became empty
}

type leqConstraint struct{ a, b *IntVar }

// NewModel creates an empty model. Every non-depot index must be visited exactly once.
func NewModel(manager *IndexManager) *Model {
	return &Model{manager: manager, arcCost: -1, dimByName: map[string]*Dimension{}}
}

func (m *Model) Manager() *IndexManager { return m.manager }

// RegisterTransitCallback stores cb and returns its handle.
func (m *Model) RegisterTransitCallback(cb TransitCallback) int {
	m.callbacks = append(m.callbacks, cb)
	return len(m.callbacks) - 1
}

// SetArcCostEvaluatorOfAllVehicles makes the registered callback the arc cost of the objective.
func (m *Model) SetArcCostEvaluatorOfAllVehicles(cb int) error {
	if cb < 0 || cb >= len(m.callbacks) {
		return fmt.Errorf("engine: unknown transit callback %d", cb)
	}
	m.arcCost = cb
	return nil
}

// AddDimension attaches a cumulative quantity driven by the callback cb.
// Between consecutive path positions p and q the cumul grows by transit(p,q)
// plus a slack in [0, slackMax]; every cumul lies in [0, capacity].
func (m *Model) AddDimension(cb int, slackMax, capacity int64, fixStartCumulToZero bool, name string) error {
	if cb < 0 || cb >= len(m.callbacks) {
		return fmt.Errorf("engine: unknown transit callback %d", cb)
	}
	if slackMax < 0 || capacity < 0 {
		return fmt.Errorf("engine: dimension %q: negative slack or capacity", name)
	}
	if _, ok := m.dimByName[name]; ok {
		return fmt.Errorf("engine: dimension %q already exists", name)
	}
	d := &Dimension{
		name:     name,
		model:    m,
		transit:  cb,
		slackMax: slackMax,
		capacity: capacity,
		cumuls:   make([]*IntVar, m.manager.NumIndices()),
	}
	for i := range d.cumuls {
		d.cumuls[i] = &IntVar{dim: d, index: int64(i), lo: 0, hi: capacity}
	}
	if fixStartCumulToZero {
		d.cumuls[m.manager.startIndex()].SetRange(0, 0)
	}
	m.dims = append(m.dims, d)
	m.dimByName[name] = d
	return nil
}

// Dimension looks a dimension up by name.
func (m *Model) Dimension(name string) (*Dimension, error) {
	d, ok := m.dimByName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDimension, name)
	}
	return d, nil
}

// AddLessOrEqual constrains a <= b. Both variables must belong to the same dimension.
func (m *Model) AddLessOrEqual(a, b *IntVar) error {
	if a == nil || b == nil {
		return errors.New("engine: nil variable in constraint")
	}
	if a.dim != b.dim || a.dim.model != m {
		return errors.New("engine: constraint spans different dimensions")
	}
	m.leq = append(m.leq, leqConstraint{a: a, b: b})
	return nil
}

// AddVariableMaximizedByFinalizer asks the solver to push v as high as the
// schedule allows once the route is fixed.
func (m *Model) AddVariableMaximizedByFinalizer(v *IntVar) {
	if v == nil {
		return
	}
	m.finalizers = append(m.finalizers, v)
}

// Start returns the start index of vehicle v. There is only one vehicle.
func (m *Model) Start(v int) int64 { return m.manager.startIndex() }

// End returns the end index of vehicle v.
func (m *Model) End(v int) int64 { return m.manager.endIndex }

func (m *Model) IsEnd(index int64) bool { return index == m.manager.endIndex }

// Dimension is a cumulative quantity tracked along the route.
type Dimension struct {
	name     string
	model    *Model
	transit  int
	slackMax int64
	capacity int64
	cumuls   []*IntVar
}

func (d *Dimension) Name() string { return d.name }

// CumulVar returns the cumul variable at index, or nil when index is outside the model.
func (d *Dimension) CumulVar(index int64) *IntVar {
	if index < 0 || index >= int64(len(d.cumuls)) {
		return nil
	}
	return d.cumuls[index]
}

// IntVar is a bounded integer variable of a dimension.
type IntVar struct {
	dim    *Dimension
	index  int64
	lo, hi int64
}

// SetRange narrows the domain of v to its intersection with [lo, hi].
func (v *IntVar) SetRange(lo, hi int64) {
	if lo > v.lo {
		v.lo = lo
	}
	if hi < v.hi {
		v.hi = hi
	}
	if v.lo > v.hi {
		v.dim.model.empty = true
	}
}

func (v *IntVar) Min() int64   { return v.lo }
func (v *IntVar) Max() int64   { return v.hi }
func (v *IntVar) Index() int64 { return v.index }
