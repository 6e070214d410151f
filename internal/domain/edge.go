package domain

import (
	"errors"
	"fmt"
)

// CostEdge is the travel cost between two points for one travel mode.
//
// Edges produced by the local great-circle estimate carry IsFallback=true and
// must never be stored as if they were provider quotes.
type CostEdge struct {
	DistanceMeters  int      `json:"distance_meters"`
	DurationSeconds int      `json:"duration_seconds"`
	Polyline        string   `json:"polyline,omitempty"`
	Steps           []string `json:"steps,omitempty"`
	IsFallback      bool     `json:"is_fallback"`
}

// Cost returns the edge weight for the given optimization criterion.
func (e CostEdge) Cost(c Criterion) int {
	if c == CriterionDistance {
		return e.DistanceMeters
	}
	return e.DurationSeconds
}

// CostMatrix is a square matrix of edges indexed by point position.
// Cells are nil only while a builder is filling the matrix; Complete must
// succeed before the matrix is handed to an optimizer.
type CostMatrix struct {
	Points []Point
	edges  [][]*CostEdge
	// Symmetric records that [i][j] and [j][i] share one lookup.
	Symmetric bool
}

// NewCostMatrix returns an empty matrix over points with zero-cost diagonal cells.
func NewCostMatrix(points []Point, symmetric bool) *CostMatrix {
	n := len(points)
	edges := make([][]*CostEdge, n)
	for i := range edges {
		edges[i] = make([]*CostEdge, n)
		edges[i][i] = &CostEdge{}
	}

	pts := make([]Point, n)
	copy(pts, points)
	return &CostMatrix{Points: pts, edges: edges, Symmetric: symmetric}
}

// Size returns the number of points covered by the matrix.
func (m *CostMatrix) Size() int { return len(m.edges) }

// Set stores e at [i][j]; for symmetric matrices [j][i] is set too.
func (m *CostMatrix) Set(i, j int, e CostEdge) {
	edge := e
	m.edges[i][j] = &edge
	if m.Symmetric {
		m.edges[j][i] = &edge
	}
}

// Has reports whether the cell is filled.
func (m *CostMatrix) Has(i, j int) bool { return m.edges[i][j] != nil }

// Edge returns the edge at [i][j]. Missing cells return the zero edge; callers
// only read complete matrices.
func (m *CostMatrix) Edge(i, j int) CostEdge {
	if e := m.edges[i][j]; e != nil {
		return *e
	}
	return CostEdge{}
}

// Cost returns the weight of [i][j] under criterion c.
func (m *CostMatrix) Cost(i, j int, c Criterion) int {
	if e := m.edges[i][j]; e != nil {
		return e.Cost(c)
	}
	return 0
}

// Complete verifies that every off-diagonal cell is filled.
func (m *CostMatrix) Complete() error {
	for i := range m.edges {
		for j := range m.edges[i] {
			if m.edges[i][j] == nil {
				return fmt.Errorf("cost matrix: missing edge %q -> %q", m.Points[i].Label(), m.Points[j].Label())
			}
		}
	}
	return nil
}

// FallbackEdges counts filled off-diagonal cells that were estimated locally.
func (m *CostMatrix) FallbackEdges() int {
	n := 0
	for i := range m.edges {
		for j := range m.edges[i] {
			if i != j && m.edges[i][j] != nil && m.edges[i][j].IsFallback {
				n++
			}
		}
	}
	return n
}

// Sub returns a matrix over the given point positions. The new matrix shares
// edge values with m; index 0 of the result is indices[0].
func (m *CostMatrix) Sub(indices []int) (*CostMatrix, error) {
	if len(indices) == 0 {
		return nil, errors.New("cost matrix: sub-matrix needs at least one index")
	}

	n := len(m.edges)
	pts := make([]Point, len(indices))
	edges := make([][]*CostEdge, len(indices))
	for a, i := range indices {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("cost matrix: index %d out of range [0, %d)", i, n)
		}
		pts[a] = m.Points[i]
		edges[a] = make([]*CostEdge, len(indices))
		for b, j := range indices {
			edges[a][b] = m.edges[i][j]
		}
	}

	return &CostMatrix{Points: pts, edges: edges, Symmetric: m.Symmetric}, nil
}
