package engine

import "fmt"

// IndexManager maps location nodes to the variable indices used by a Model.
// Every node owns the index equal to its node number. When the route starts
// and ends at the same node, the end depot gets an extra index numNodes so
// that start and end remain distinct positions on the path.
type IndexManager struct {
	numNodes int
	start    int
	end      int
	endIndex int64
}

// NewIndexManager builds a manager for a single vehicle going from start to end.
func NewIndexManager(numNodes, start, end int) (*IndexManager, error) {
	if numNodes < 1 {
		return nil, ErrEmptyModel
	}
	if start < 0 || start >= numNodes {
		return nil, fmt.Errorf("engine: start node %d out of range [0,%d)", start, numNodes)
	}
	if end < 0 || end >= numNodes {
		return nil, fmt.Errorf("engine: end node %d out of range [0,%d)", end, numNodes)
	}
	m := &IndexManager{numNodes: numNodes, start: start, end: end, endIndex: int64(end)}
	if start == end {
		m.endIndex = int64(numNodes)
	}
	return m, nil
}

// NumNodes is the number of locations.
func (m *IndexManager) NumNodes() int { return m.numNodes }

// NumIndices is the number of path positions the model tracks.
func (m *IndexManager) NumIndices() int {
	if m.start == m.end {
		return m.numNodes + 1
	}
	return m.numNodes
}

// NodeToIndex returns the index of node, or -1 when node is unknown.
// For a shared depot it returns the start index.
func (m *IndexManager) NodeToIndex(node int) int64 {
	if node < 0 || node >= m.numNodes {
		return -1
	}
	return int64(node)
}

// IndexToNode returns the node owning index, or -1 when index is unknown.
func (m *IndexManager) IndexToNode(index int64) int {
	if index == m.endIndex {
		return m.end
	}
	if index < 0 || index >= int64(m.numNodes) {
		return -1
	}
	return int(index)
}

func (m *IndexManager) startIndex() int64 { return int64(m.start) }
