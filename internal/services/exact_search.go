package services

import (
	"context"
	"errand-route-service/internal/domain"
)

// exactSearch enumerates destination permutations depth-first and keeps the
// k cheapest complete tours. A partial tour whose cost already reaches the
// current k-th best is cut.
type exactSearch struct {
	ctx context.Context
	m   *domain.CostMatrix
	c   domain.Criterion
	k   int
	d   int

	used  []bool
	path  []int
	best  []scoredOrder
	steps int
	done  bool
}

// exactTopK returns up to k cheapest tours in ascending cost. Equal costs keep
// enumeration order. If ctx ends early the best tours found so far are returned.
func exactTopK(ctx context.Context, m *domain.CostMatrix, c domain.Criterion, k int) []scoredOrder {
	s := &exactSearch{
		ctx:  ctx,
		m:    m,
		c:    c,
		k:    k,
		d:    m.Size() - 1,
		used: make([]bool, m.Size()),
		path: make([]int, 0, m.Size()-1),
	}
	s.dfs(0, 0)
	return s.best
}

func (s *exactSearch) stopped() bool {
	if s.done {
		return true
	}
	s.steps++
	if s.steps&1023 == 0 && s.ctx.Err() != nil {
		s.done = true
	}
	return s.done
}

func (s *exactSearch) dfs(last, cost int) {
	if s.stopped() {
		return
	}
	if len(s.best) == s.k && cost >= s.best[s.k-1].cost {
		return
	}

	if len(s.path) == s.d {
		s.offer(cost + s.m.Cost(last, 0, s.c))
		return
	}

	for v := 1; v <= s.d; v++ {
		if s.used[v] {
			continue
		}
		s.used[v] = true
		s.path = append(s.path, v)
		s.dfs(v, cost+s.m.Cost(last, v, s.c))
		s.path = s.path[:len(s.path)-1]
		s.used[v] = false
	}
}

// offer inserts the current path if it beats the k-th best.
func (s *exactSearch) offer(total int) {
	if len(s.best) == s.k && total >= s.best[s.k-1].cost {
		return
	}

	pos := len(s.best)
	for pos > 0 && s.best[pos-1].cost > total {
		pos--
	}

	order := make([]int, len(s.path))
	copy(order, s.path)
	entry := scoredOrder{order: order, cost: total, algo: domain.AlgorithmExact}

	s.best = append(s.best, scoredOrder{})
	copy(s.best[pos+1:], s.best[pos:])
	s.best[pos] = entry
	if len(s.best) > s.k {
		s.best = s.best[:s.k]
	}
}
