// Package solver provides ports.TourSolver implementations.
package solver

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"fmt"
	"log"
	"math"
	"sort"
	"time"
)

// DefaultMaxNodes bounds the instance size the branch-and-bound solver accepts.
const DefaultMaxNodes = 20

// BranchBound is an exact depth-first branch-and-bound tour solver minimizing
// total duration. It keeps the best tour found so far and returns it when the
// budget runs out.
type BranchBound struct {
	MaxNodes int
}

func NewBranchBound(maxNodes int) *BranchBound {
	if maxNodes <= 0 {
		maxNodes = DefaultMaxNodes
	}
	return &BranchBound{MaxNodes: maxNodes}
}

type bbSearch struct {
	n int
	w [][]int

	minOut []int
	minIn  []int
	order  [][]int

	visited []bool
	path    []int

	best     []int
	bestCost int

	ctx      context.Context
	deadline time.Time
	steps    int
	stopped  bool
}

// SolveTour returns a closed tour [0, ..., 0] over every node of m.
func (b *BranchBound) SolveTour(ctx context.Context, m *domain.CostMatrix, budget time.Duration) (_ []int, err error) {
	defer obs.Time(ctx, "solver.BranchBound")(&err)

	n := m.Size()
	if n > b.MaxNodes {
		return nil, fmt.Errorf("branch and bound: %d nodes exceeds limit %d: %w", n, b.MaxNodes, domain.ErrSolverUnavailable)
	}
	if err := m.Complete(); err != nil {
		return nil, fmt.Errorf("branch and bound: %w: %v", domain.ErrSolverUnavailable, err)
	}
	if n <= 2 {
		tour := make([]int, 0, n+1)
		for i := 0; i < n; i++ {
			tour = append(tour, i)
		}
		return append(tour, 0), nil
	}

	s := &bbSearch{n: n, ctx: ctx}
	if budget > 0 {
		s.deadline = time.Now().Add(budget)
	}
	s.prefetch(m)
	s.seed()

	s.visited = make([]bool, n)
	s.path = make([]int, n+1)
	s.visited[0] = true
	s.dfs(0, 1, 0)

	if s.stopped {
		log.Printf("op=solver.BranchBound nodes=%d budget_exhausted=true cost=%d", n, s.bestCost)
	}
	return s.best, nil
}

func (s *bbSearch) prefetch(m *domain.CostMatrix) {
	s.w = make([][]int, s.n)
	s.minOut = make([]int, s.n)
	s.minIn = make([]int, s.n)
	for i := range s.minOut {
		s.minOut[i] = math.MaxInt
		s.minIn[i] = math.MaxInt
	}

	for u := 0; u < s.n; u++ {
		s.w[u] = make([]int, s.n)
		for v := 0; v < s.n; v++ {
			s.w[u][v] = m.Cost(u, v, domain.CriterionTime)
		}
	}
	for u := 0; u < s.n; u++ {
		for v := 0; v < s.n; v++ {
			if u == v {
				continue
			}
			s.minOut[u] = min(s.minOut[u], s.w[u][v])
			s.minIn[v] = min(s.minIn[v], s.w[u][v])
		}
	}

	// Try cheaper successors first, ties by index.
	s.order = make([][]int, s.n)
	for u := 0; u < s.n; u++ {
		row := make([]int, 0, s.n-1)
		for v := 0; v < s.n; v++ {
			if v != u {
				row = append(row, v)
			}
		}
		sort.SliceStable(row, func(i, j int) bool { return s.w[u][row[i]] < s.w[u][row[j]] })
		s.order[u] = row
	}
}

// seed sets the upper bound from a nearest-neighbor tour.
func (s *bbSearch) seed() {
	seen := make([]bool, s.n)
	seen[0] = true
	tour := []int{0}
	cost, last := 0, 0
	for len(tour) < s.n {
		for _, v := range s.order[last] {
			if !seen[v] {
				seen[v] = true
				cost += s.w[last][v]
				tour = append(tour, v)
				last = v
				break
			}
		}
	}
	cost += s.w[last][0]
	s.best = append(tour, 0)
	s.bestCost = cost
}

// lowerBound adds, for every node whose outgoing (incoming) edge is not yet
// fixed, its cheapest outgoing (incoming) edge, and takes the larger sum.
func (s *bbSearch) lowerBound(costSoFar, last int) int {
	sumOut, sumIn := 0, 0
	for v := 0; v < s.n; v++ {
		if s.visited[v] {
			if v == last {
				sumOut += s.minOut[v]
			}
			if v == 0 {
				sumIn += s.minIn[v]
			}
			continue
		}
		sumOut += s.minOut[v]
		sumIn += s.minIn[v]
	}
	return costSoFar + max(sumOut, sumIn)
}

func (s *bbSearch) expired() bool {
	if s.stopped {
		return true
	}
	s.steps++
	if s.steps&1023 != 1 {
		return false
	}
	if s.ctx.Err() != nil || (!s.deadline.IsZero() && time.Now().After(s.deadline)) {
		s.stopped = true
	}
	return s.stopped
}

func (s *bbSearch) dfs(last, depth, costSoFar int) {
	if s.expired() {
		return
	}
	if s.lowerBound(costSoFar, last) >= s.bestCost {
		return
	}

	if depth == s.n {
		total := costSoFar + s.w[last][0]
		if total < s.bestCost {
			s.path[0] = 0
			s.path[s.n] = 0
			copy(s.best, s.path)
			s.bestCost = total
		}
		return
	}

	for _, v := range s.order[last] {
		if s.visited[v] {
			continue
		}
		s.visited[v] = true
		s.path[depth] = v
		s.dfs(v, depth+1, costSoFar+s.w[last][v])
		s.visited[v] = false
	}
}
