package services

import (
	"context"
	"errand-route-service/internal/adapters/solver"
	"errand-route-service/internal/domain"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

// gridMatrix prices straight-line distances between points on a plane; one
// unit is 1000m and takes 100s.
func gridMatrix(xy [][2]float64) *domain.CostMatrix {
	pts := make([]domain.Point, len(xy))
	for i := range xy {
		pts[i] = domain.Point{ID: string(rune('a' + i)), DwellSeconds: 300}
	}
	pts[0].DwellSeconds = 0

	m := domain.NewCostMatrix(pts, true)
	for i := range xy {
		for j := i + 1; j < len(xy); j++ {
			dist := math.Hypot(xy[i][0]-xy[j][0], xy[i][1]-xy[j][1])
			m.Set(i, j, domain.CostEdge{
				DistanceMeters:  int(math.Round(dist * 1000)),
				DurationSeconds: int(math.Round(dist * 100)),
			})
		}
	}
	return m
}

func randomGrid(n int, seed uint64) [][2]float64 {
	rng := rand.New(rand.NewPCG(seed, seed))
	xy := make([][2]float64, n)
	for i := range xy {
		xy[i] = [2]float64{rng.Float64() * 10, rng.Float64() * 10}
	}
	return xy
}

func checkClosedTours(t *testing.T, m *domain.CostMatrix, cands []domain.TourCandidate) {
	t.Helper()

	for _, cand := range cands {
		if len(cand.Route) != m.Size()+1 {
			t.Fatalf("route has %d stops, want %d", len(cand.Route), m.Size()+1)
		}
		if cand.Route[0].ID != m.Points[0].ID || cand.Route[len(cand.Route)-1].ID != m.Points[0].ID {
			t.Fatalf("route %v does not start and end at home", cand.VisitOrder)
		}
		seen := map[int]bool{}
		for _, v := range cand.VisitOrder {
			if v <= 0 || v >= m.Size() || seen[v] {
				t.Fatalf("visit order %v is not a permutation of destinations", cand.VisitOrder)
			}
			seen[v] = true
		}
		if len(seen) != m.Size()-1 {
			t.Fatalf("visit order %v misses destinations", cand.VisitOrder)
		}
	}
}

func TestExactSquareTour(t *testing.T) {
	pts := squarePoints()
	m := domain.NewCostMatrix(pts, true)
	for _, p := range squarePairs(pts) {
		var i, j int
		for k := range pts {
			if pts[k].Coordinates == p.From {
				i = k
			}
			if pts[k].Coordinates == p.To {
				j = k
			}
		}
		m.Set(i, j, domain.CostEdge{DistanceMeters: p.Meters, DurationSeconds: p.Seconds})
	}

	opt := NewTourOptimizer(nil, DefaultOptimizerConfig())
	out, algo, err := opt.Solve(context.Background(), m, nil, domain.AlgorithmAuto, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algo != domain.AlgorithmExact {
		t.Fatalf("algorithm = %q, want exact", algo)
	}

	byDist := out[domain.CriterionDistance]
	if len(byDist) == 0 {
		t.Fatal("no distance candidates")
	}
	best := byDist[0]
	if best.TotalDistanceMeters != 4000 {
		t.Fatalf("best distance = %d, want 4000", best.TotalDistanceMeters)
	}

	// home -> A -> C -> B -> home or its reverse.
	got := orderKey(best.VisitOrder)
	if got != "1,3,2" && got != "2,3,1" {
		t.Fatalf("best order = %s, want 1,3,2 or 2,3,1", got)
	}
	if best.TotalDwellSeconds != 1800 || best.TotalDurationSeconds != best.TotalTravelSeconds+1800 {
		t.Fatalf("dwell = %d, duration = %d, travel = %d", best.TotalDwellSeconds, best.TotalDurationSeconds, best.TotalTravelSeconds)
	}

	// 3! orders, all distinct.
	if len(byDist) != 5 {
		t.Fatalf("got %d candidates, want 5", len(byDist))
	}
	for i, c := range byDist {
		if c.Rank != i+1 {
			t.Fatalf("candidate %d has rank %d", i, c.Rank)
		}
		if i > 0 && c.TotalDistanceMeters < byDist[i-1].TotalDistanceMeters {
			t.Fatal("candidates not sorted by distance")
		}
	}
	checkClosedTours(t, m, byDist)
	checkClosedTours(t, m, out[domain.CriterionTime])
}

func TestExactNeverWorseThanOtherAlgorithms(t *testing.T) {
	for seed := uint64(1); seed <= 5; seed++ {
		m := gridMatrix(randomGrid(8, seed))
		opt := NewTourOptimizer(solver.NewBranchBound(0), DefaultOptimizerConfig())

		exact, _, err := opt.Solve(context.Background(), m, []domain.Criterion{domain.CriterionDistance}, domain.AlgorithmExact, 5*time.Second)
		if err != nil {
			t.Fatalf("seed %d exact: %v", seed, err)
		}
		optimum := exact[domain.CriterionDistance][0].TotalDistanceMeters

		for _, algo := range []domain.Algorithm{domain.AlgorithmHeuristic, domain.AlgorithmGenetic, domain.AlgorithmSolver} {
			out, _, err := opt.Solve(context.Background(), m, []domain.Criterion{domain.CriterionDistance}, algo, 5*time.Second)
			if err != nil {
				t.Fatalf("seed %d %s: %v", seed, algo, err)
			}
			cands := out[domain.CriterionDistance]
			checkClosedTours(t, m, cands)
			if got := cands[0].TotalDistanceMeters; got < optimum {
				t.Fatalf("seed %d %s found %d below exact optimum %d", seed, algo, got, optimum)
			}
		}
	}
}

func TestSolverTourMinimizesTime(t *testing.T) {
	m := gridMatrix(randomGrid(9, 42))
	opt := NewTourOptimizer(solver.NewBranchBound(0), DefaultOptimizerConfig())

	out, algo, err := opt.Solve(context.Background(), m, nil, domain.AlgorithmAuto, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algo != domain.AlgorithmSolver {
		t.Fatalf("algorithm = %q, want solver for 8 destinations", algo)
	}

	exact, _, err := opt.Solve(context.Background(), m, []domain.Criterion{domain.CriterionTime}, domain.AlgorithmExact, 10*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := out[domain.CriterionTime][0].TotalTravelSeconds, exact[domain.CriterionTime][0].TotalTravelSeconds; got != want {
		t.Fatalf("solver best time = %d, exact = %d", got, want)
	}
}

func TestSelectAlgorithm(t *testing.T) {
	withSolver := NewTourOptimizer(solver.NewBranchBound(0), DefaultOptimizerConfig())
	without := NewTourOptimizer(nil, DefaultOptimizerConfig())

	cases := []struct {
		d    int
		opt  *TourOptimizer
		want domain.Algorithm
	}{
		{1, withSolver, domain.AlgorithmExact},
		{6, withSolver, domain.AlgorithmExact},
		{7, withSolver, domain.AlgorithmSolver},
		{15, withSolver, domain.AlgorithmSolver},
		{10, without, domain.AlgorithmHeuristic},
		{16, withSolver, domain.AlgorithmGenetic},
		{25, without, domain.AlgorithmGenetic},
		{26, withSolver, domain.AlgorithmHeuristic},
	}
	for _, tc := range cases {
		if got := tc.opt.SelectAlgorithm(tc.d); got != tc.want {
			t.Fatalf("SelectAlgorithm(%d) = %q, want %q", tc.d, got, tc.want)
		}
	}
}

func TestSolveRejectsTooManyDestinations(t *testing.T) {
	cfg := DefaultOptimizerConfig()
	cfg.MaxDestinations = 4
	opt := NewTourOptimizer(nil, cfg)

	_, _, err := opt.Solve(context.Background(), gridMatrix(randomGrid(6, 1)), nil, domain.AlgorithmAuto, time.Second)
	if !domain.IsInputError(err) {
		t.Fatalf("err = %v, want InputError", err)
	}
}

func TestSolveRejectsLargeExplicitExact(t *testing.T) {
	opt := NewTourOptimizer(nil, DefaultOptimizerConfig())

	_, _, err := opt.Solve(context.Background(), gridMatrix(randomGrid(12, 1)), nil, domain.AlgorithmExact, time.Second)
	if !domain.IsInputError(err) {
		t.Fatalf("err = %v, want InputError", err)
	}
}

func TestSolveHomeOnly(t *testing.T) {
	opt := NewTourOptimizer(nil, DefaultOptimizerConfig())

	out, _, err := opt.Solve(context.Background(), gridMatrix([][2]float64{{0, 0}}), nil, domain.AlgorithmAuto, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cands := out[domain.CriterionTime]
	if len(cands) != 1 || len(cands[0].Route) != 2 || cands[0].TotalTravelSeconds != 0 {
		t.Fatalf("candidates = %+v, want one home->home tour", cands)
	}
}

func TestLargeInstanceUsesHeuristic(t *testing.T) {
	m := gridMatrix(randomGrid(31, 7))
	opt := NewTourOptimizer(nil, DefaultOptimizerConfig())

	out, algo, err := opt.Solve(context.Background(), m, nil, domain.AlgorithmAuto, 5*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if algo != domain.AlgorithmHeuristic {
		t.Fatalf("algorithm = %q, want heuristic", algo)
	}
	checkClosedTours(t, m, out[domain.CriterionTime])

	// 2-opt output never exceeds the plain nearest-neighbor tour.
	nn := nearestNeighborOrder(m, domain.CriterionDistance, 0)
	if got, base := out[domain.CriterionDistance][0].TotalDistanceMeters, orderCost(m, nn, domain.CriterionDistance); got > base {
		t.Fatalf("best distance %d exceeds nearest neighbor %d", got, base)
	}
}

func TestGeneticHonorsTinyBudget(t *testing.T) {
	m := gridMatrix(randomGrid(21, 11))
	opt := NewTourOptimizer(solver.NewBranchBound(0), DefaultOptimizerConfig())

	start := time.Now()
	out, algo, err := opt.Solve(context.Background(), m, nil, domain.AlgorithmAuto, time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("elapsed = %v, want Solve to stop near its budget", elapsed)
	}
	if algo != domain.AlgorithmGenetic {
		t.Fatalf("algorithm = %q, want genetic for 20 destinations", algo)
	}
	for _, c := range []domain.Criterion{domain.CriterionTime, domain.CriterionDistance} {
		if len(out[c]) == 0 {
			t.Fatalf("no %s candidates", c)
		}
		checkClosedTours(t, m, out[c])
	}
}

func TestOrderCrossoverKeepsPermutation(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 3))
	p1 := []int{1, 2, 3, 4, 5, 6, 7}
	p2 := []int{7, 6, 5, 4, 3, 2, 1}

	for i := 0; i < 50; i++ {
		child := orderCrossover(p1, p2, rng)
		swapMutate(child, 0.2, rng)

		seen := map[int]bool{}
		for _, g := range child {
			seen[g] = true
		}
		if len(seen) != len(p1) {
			t.Fatalf("child %v is not a permutation", child)
		}
	}
}
