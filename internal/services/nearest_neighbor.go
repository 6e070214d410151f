package services

import (
	"context"
	"errand-route-service/internal/domain"
)

// nearestNeighborOrder builds a destination order greedily by minimum edge
// cost under c. When first is a destination index the tour is forced to visit
// it first; first == 0 starts the greedy choice at home.
//
// Ties go to the lower index so results are deterministic.
func nearestNeighborOrder(m *domain.CostMatrix, c domain.Criterion, first int) []int {
	d := m.Size() - 1
	visited := make([]bool, d+1)
	visited[0] = true

	order := make([]int, 0, d)
	current := 0
	if first > 0 && first <= d {
		order = append(order, first)
		visited[first] = true
		current = first
	}

	for len(order) < d {
		best, bestCost := -1, 0
		for v := 1; v <= d; v++ {
			if visited[v] {
				continue
			}
			cost := m.Cost(current, v, c)
			if best == -1 || cost < bestCost {
				best, bestCost = v, cost
			}
		}

		visited[best] = true
		order = append(order, best)
		current = best
	}

	return order
}

// twoOpt applies first-improvement 2-opt moves to the closed tour
// home -> order -> home until no strictly improving move remains, the
// iteration cap is reached, or ctx ends. Home stays fixed at both ends.
func twoOpt(ctx context.Context, m *domain.CostMatrix, c domain.Criterion, order []int, maxIter int) []int {
	tour := make([]int, 0, len(order)+2)
	tour = append(tour, 0)
	tour = append(tour, order...)
	tour = append(tour, 0)

	for iter := 0; iter < maxIter; iter++ {
		if ctx.Err() != nil {
			break
		}
		if !improveOnce(m, c, tour) {
			break
		}
	}

	out := make([]int, len(order))
	copy(out, tour[1:len(tour)-1])
	return out
}

// improveOnce applies the first improving reversal of tour[i..j] and reports
// whether one was found.
func improveOnce(m *domain.CostMatrix, c domain.Criterion, tour []int) bool {
	last := len(tour) - 1
	for i := 1; i < last-1; i++ {
		for j := i + 1; j < last; j++ {
			if reversalGain(m, c, tour, i, j) > 0 {
				reverse(tour[i : j+1])
				return true
			}
		}
	}
	return false
}

// reversalGain is the cost reduction from reversing tour[i..j]. Symmetric
// matrices only change the two boundary edges; otherwise the whole segment
// is re-priced.
func reversalGain(m *domain.CostMatrix, c domain.Criterion, tour []int, i, j int) int {
	a, b := tour[i-1], tour[i]
	x, y := tour[j], tour[j+1]

	if m.Symmetric {
		before := m.Cost(a, b, c) + m.Cost(x, y, c)
		after := m.Cost(a, x, c) + m.Cost(b, y, c)
		return before - after
	}

	before, after := 0, 0
	for k := i - 1; k <= j; k++ {
		before += m.Cost(tour[k], tour[k+1], c)
	}
	after += m.Cost(a, x, c)
	for k := j; k > i; k-- {
		after += m.Cost(tour[k], tour[k-1], c)
	}
	after += m.Cost(b, y, c)
	return before - after
}

func reverse(s []int) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
