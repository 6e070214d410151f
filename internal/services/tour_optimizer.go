package services

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"
)

type OptimizerConfig struct {
	TopK int

	// Adaptive selection by destination count:
	// <= ExactMax exact, <= SolverMax delegated solver (heuristic when none is
	// configured), <= GeneticMax genetic, above that heuristic.
	ExactMax   int
	SolverMax  int
	GeneticMax int
	// ExactHardLimit caps explicit exact requests.
	ExactHardLimit  int
	MaxDestinations int

	TwoOptMaxIterations int
	NNExtraStarts       int

	GAPopulation   int
	GAGenerations  int
	GAMutationRate float64
	Seed           uint64

	DefaultBudget time.Duration
}

func DefaultOptimizerConfig() OptimizerConfig {
	return OptimizerConfig{
		TopK:                5,
		ExactMax:            6,
		SolverMax:           15,
		GeneticMax:          25,
		ExactHardLimit:      10,
		MaxDestinations:     50,
		TwoOptMaxIterations: 1000,
		NNExtraStarts:       3,
		GAPopulation:        60,
		GAGenerations:       300,
		GAMutationRate:      0.02,
		Seed:                1,
		DefaultBudget:       10 * time.Second,
	}
}

func (c OptimizerConfig) withDefaults() OptimizerConfig {
	def := DefaultOptimizerConfig()
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.ExactMax <= 0 {
		c.ExactMax = def.ExactMax
	}
	if c.SolverMax < c.ExactMax {
		c.SolverMax = max(def.SolverMax, c.ExactMax)
	}
	if c.GeneticMax < c.SolverMax {
		c.GeneticMax = max(def.GeneticMax, c.SolverMax)
	}
	if c.ExactHardLimit < c.ExactMax {
		c.ExactHardLimit = max(def.ExactHardLimit, c.ExactMax)
	}
	if c.MaxDestinations <= 0 {
		c.MaxDestinations = def.MaxDestinations
	}
	if c.TwoOptMaxIterations <= 0 {
		c.TwoOptMaxIterations = def.TwoOptMaxIterations
	}
	if c.NNExtraStarts < 0 {
		c.NNExtraStarts = 0
	}
	if c.GAPopulation < 4 {
		c.GAPopulation = def.GAPopulation
	}
	if c.GAGenerations <= 0 {
		c.GAGenerations = def.GAGenerations
	}
	if c.GAMutationRate < 0 || c.GAMutationRate > 1 {
		c.GAMutationRate = def.GAMutationRate
	}
	if c.DefaultBudget <= 0 {
		c.DefaultBudget = def.DefaultBudget
	}
	return c
}

// TourOptimizer ranks closed tours from home (matrix index 0) through every
// other matrix point. It holds no per-request state and is safe for
// concurrent use.
type TourOptimizer struct {
	solver ports.TourSolver
	cfg    OptimizerConfig
}

// NewTourOptimizer builds an optimizer. solver may be nil.
func NewTourOptimizer(solver ports.TourSolver, cfg OptimizerConfig) *TourOptimizer {
	return &TourOptimizer{solver: solver, cfg: cfg.withDefaults()}
}

// SelectAlgorithm returns the adaptive choice for d destinations.
func (o *TourOptimizer) SelectAlgorithm(d int) domain.Algorithm {
	switch {
	case d <= o.cfg.ExactMax:
		return domain.AlgorithmExact
	case d <= o.cfg.SolverMax:
		if o.solver != nil {
			return domain.AlgorithmSolver
		}
		return domain.AlgorithmHeuristic
	case d <= o.cfg.GeneticMax:
		return domain.AlgorithmGenetic
	default:
		return domain.AlgorithmHeuristic
	}
}

// ParseAlgorithm accepts the algorithm names and a few short aliases.
func ParseAlgorithm(s string) (domain.Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return domain.AlgorithmAuto, nil
	case "exact", "brute_force":
		return domain.AlgorithmExact, nil
	case "heuristic", "nearest_neighbor", "nearest_neighbor_2opt", "2opt":
		return domain.AlgorithmHeuristic, nil
	case "genetic", "ga":
		return domain.AlgorithmGenetic, nil
	case "solver", "ortools":
		return domain.AlgorithmSolver, nil
	}
	return "", &domain.InputError{Field: "algorithm", Reason: fmt.Sprintf("unsupported algorithm %q", s)}
}

func (o *TourOptimizer) resolve(algo domain.Algorithm, d int) (domain.Algorithm, error) {
	switch algo {
	case domain.AlgorithmAuto, "":
		return o.SelectAlgorithm(d), nil
	case domain.AlgorithmExact:
		if d > o.cfg.ExactHardLimit {
			return "", &domain.InputError{
				Field:  "algorithm",
				Reason: fmt.Sprintf("exact search supports at most %d destinations, got %d", o.cfg.ExactHardLimit, d),
			}
		}
		return algo, nil
	case domain.AlgorithmSolver:
		if o.solver == nil {
			return domain.AlgorithmHeuristic, nil
		}
		return algo, nil
	case domain.AlgorithmHeuristic, domain.AlgorithmGenetic:
		return algo, nil
	}
	return "", &domain.InputError{Field: "algorithm", Reason: fmt.Sprintf("unsupported algorithm %q", algo)}
}

type scoredOrder struct {
	order []int
	cost  int
	algo  domain.Algorithm
}

// Solve returns up to TopK ranked candidates per criterion and the algorithm
// that produced them. budget <= 0 uses the configured default.
func (o *TourOptimizer) Solve(
	ctx context.Context,
	m *domain.CostMatrix,
	criteria []domain.Criterion,
	algo domain.Algorithm,
	budget time.Duration,
) (_ map[domain.Criterion][]domain.TourCandidate, _ domain.Algorithm, err error) {
	defer obs.Time(ctx, "tour.Solve")(&err)

	if m == nil || m.Size() == 0 {
		return nil, "", &domain.InputError{Field: "points", Reason: "home point is required"}
	}
	if err := m.Complete(); err != nil {
		return nil, "", fmt.Errorf("optimize tour: %w", err)
	}

	d := m.Size() - 1
	if d > o.cfg.MaxDestinations {
		return nil, "", &domain.InputError{
			Field:  "destinations",
			Reason: fmt.Sprintf("at most %d destinations supported, got %d", o.cfg.MaxDestinations, d),
		}
	}

	if len(criteria) == 0 {
		criteria = []domain.Criterion{domain.CriterionTime, domain.CriterionDistance}
	}
	for _, c := range criteria {
		if c != domain.CriterionTime && c != domain.CriterionDistance {
			return nil, "", &domain.InputError{Field: "criterion", Reason: fmt.Sprintf("unsupported criterion %q", c)}
		}
	}

	chosen, err := o.resolve(algo, d)
	if err != nil {
		return nil, "", err
	}

	if budget <= 0 {
		budget = o.cfg.DefaultBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	out := make(map[domain.Criterion][]domain.TourCandidate, len(criteria))
	if d == 0 {
		for _, c := range criteria {
			cand := buildCandidate(m, nil, c, chosen)
			cand.Rank = 1
			out[c] = []domain.TourCandidate{cand}
		}
		return out, chosen, nil
	}

	var solverOrder []int
	if chosen == domain.AlgorithmSolver {
		// Leave part of the budget for the heuristic tours ranked alongside.
		solverOrder, err = o.runSolver(ctx, m, budget/2)
		if err != nil {
			log.Printf("op=tour.Solve solver_fallback=true destinations=%d err=%v", d, err)
			chosen = domain.AlgorithmHeuristic
		}
	}

	rng := rand.New(rand.NewPCG(o.cfg.Seed, o.cfg.Seed^0x9e3779b97f4a7c15))

	for _, c := range criteria {
		var pool []scoredOrder
		switch chosen {
		case domain.AlgorithmExact:
			pool = exactTopK(ctx, m, c, o.cfg.TopK)
			if len(pool) == 0 {
				pool = o.heuristicOrders(ctx, m, c)
			}
		case domain.AlgorithmSolver:
			pool = append(pool, scoredOrder{order: solverOrder, cost: orderCost(m, solverOrder, c), algo: domain.AlgorithmSolver})
			pool = append(pool, o.heuristicOrders(ctx, m, c)...)
		case domain.AlgorithmGenetic:
			heur := o.heuristicOrders(ctx, m, c)
			best := geneticSearch(ctx, m, c, heur[0].order, o.cfg, rng)
			pool = append(pool, scoredOrder{order: best, cost: orderCost(m, best, c), algo: domain.AlgorithmGenetic})
			pool = append(pool, heur...)
		default:
			pool = o.heuristicOrders(ctx, m, c)
		}
		out[c] = rankOrders(m, pool, c, o.cfg.TopK)
	}

	return out, chosen, nil
}

func (o *TourOptimizer) runSolver(ctx context.Context, m *domain.CostMatrix, budget time.Duration) ([]int, error) {
	tour, err := o.solver.SolveTour(ctx, m, budget)
	if err != nil {
		return nil, err
	}

	n := m.Size()
	if len(tour) != n+1 || tour[0] != 0 || tour[n] != 0 {
		return nil, fmt.Errorf("%w: malformed tour %v", domain.ErrSolverUnavailable, tour)
	}
	seen := make([]bool, n)
	for _, v := range tour[:n] {
		if v < 0 || v >= n || seen[v] {
			return nil, fmt.Errorf("%w: malformed tour %v", domain.ErrSolverUnavailable, tour)
		}
		seen[v] = true
	}
	order := make([]int, n-1)
	copy(order, tour[1:n])
	return order, nil
}

// heuristicOrders builds nearest-neighbor tours from home and from the
// NNExtraStarts destinations closest to home, each improved by 2-opt.
// The plain nearest-neighbor tour is always first.
func (o *TourOptimizer) heuristicOrders(ctx context.Context, m *domain.CostMatrix, c domain.Criterion) []scoredOrder {
	d := m.Size() - 1

	firsts := []int{0}
	byHome := make([]int, 0, d)
	for v := 1; v <= d; v++ {
		byHome = append(byHome, v)
	}
	sort.SliceStable(byHome, func(i, j int) bool { return m.Cost(0, byHome[i], c) < m.Cost(0, byHome[j], c) })

	// byHome[0] is where the plain tour goes first anyway.
	for i := 1; i < len(byHome) && len(firsts) <= o.cfg.NNExtraStarts; i++ {
		firsts = append(firsts, byHome[i])
	}

	out := make([]scoredOrder, 0, len(firsts))
	for _, first := range firsts {
		order := nearestNeighborOrder(m, c, first)
		order = twoOpt(ctx, m, c, order, o.cfg.TwoOptMaxIterations)
		out = append(out, scoredOrder{order: order, cost: orderCost(m, order, c), algo: domain.AlgorithmHeuristic})
	}
	return out
}

// orderCost returns the cost of home -> order... -> home under c.
func orderCost(m *domain.CostMatrix, order []int, c domain.Criterion) int {
	last, total := 0, 0
	for _, v := range order {
		total += m.Cost(last, v, c)
		last = v
	}
	return total + m.Cost(last, 0, c)
}

func orderKey(order []int) string {
	var b strings.Builder
	for i, v := range order {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

// rankOrders sorts by cost (ties keep insertion order), drops duplicate visit
// orders and keeps the best k.
func rankOrders(m *domain.CostMatrix, pool []scoredOrder, c domain.Criterion, k int) []domain.TourCandidate {
	sort.SliceStable(pool, func(i, j int) bool { return pool[i].cost < pool[j].cost })

	seen := make(map[string]struct{}, len(pool))
	out := make([]domain.TourCandidate, 0, k)
	for _, s := range pool {
		key := orderKey(s.order)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		cand := buildCandidate(m, s.order, c, s.algo)
		cand.Rank = len(out) + 1
		out = append(out, cand)
		if len(out) == k {
			break
		}
	}
	return out
}

// buildCandidate expands a destination order into a closed tour with totals.
func buildCandidate(m *domain.CostMatrix, order []int, c domain.Criterion, algo domain.Algorithm) domain.TourCandidate {
	idx := make([]int, 0, len(order)+2)
	idx = append(idx, 0)
	idx = append(idx, order...)
	idx = append(idx, 0)

	cand := domain.TourCandidate{
		Route:      make([]domain.Point, len(idx)),
		Segments:   make([]domain.CostEdge, 0, len(idx)-1),
		VisitOrder: append([]int(nil), order...),
		Criterion:  c,
		Algorithm:  algo,
	}
	for i, v := range idx {
		cand.Route[i] = m.Points[v]
	}
	for i := 0; i+1 < len(idx); i++ {
		e := m.Edge(idx[i], idx[i+1])
		cand.Segments = append(cand.Segments, e)
		cand.TotalDistanceMeters += e.DistanceMeters
		cand.TotalTravelSeconds += e.DurationSeconds
		if e.IsFallback {
			cand.UsesFallbackEdges = true
		}
	}
	for _, v := range order {
		cand.TotalDwellSeconds += m.Points[v].DwellSeconds
	}
	cand.TotalDurationSeconds = cand.TotalTravelSeconds + cand.TotalDwellSeconds

	// Home is left at offset 0 and dwell applies only to destinations.
	cand.Schedule = make([]domain.StopTime, len(idx))
	clock := 0
	for i, v := range idx {
		if i > 0 {
			clock += cand.Segments[i-1].DurationSeconds
		}
		st := domain.StopTime{ArriveOffsetSeconds: clock, LeaveOffsetSeconds: clock}
		if i > 0 && i < len(idx)-1 {
			clock += m.Points[v].DwellSeconds
			st.LeaveOffsetSeconds = clock
		}
		cand.Schedule[i] = st
	}

	return cand
}
