package services

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"
)

type CategoryConfig struct {
	// Candidate pre-filter applied before combinations are formed.
	MaxCandidatesPerCategory int
	MaxCandidateRadiusMeters float64
	MaxCombinations          int
	TrimmedCandidates        int

	// Products up to SmallCaseMaxCombinations are enumerated in full.
	SmallCaseMaxCombinations int
	RandomRounds             int
	LocalSearchRounds        int

	TopK          int
	Seed          uint64
	DefaultBudget time.Duration
	// MinComboBudget is the smallest optimizer budget handed to one combination.
	MinComboBudget time.Duration
}

func DefaultCategoryConfig() CategoryConfig {
	return CategoryConfig{
		MaxCandidatesPerCategory: 8,
		MaxCandidateRadiusMeters: 10000,
		MaxCombinations:          200,
		TrimmedCandidates:        5,
		SmallCaseMaxCombinations: 64,
		RandomRounds:             10,
		LocalSearchRounds:        3,
		TopK:                     5,
		Seed:                     1,
		DefaultBudget:            60 * time.Second,
		MinComboBudget:           50 * time.Millisecond,
	}
}

func (c CategoryConfig) withDefaults() CategoryConfig {
	def := DefaultCategoryConfig()
	if c.MaxCandidatesPerCategory <= 0 {
		c.MaxCandidatesPerCategory = def.MaxCandidatesPerCategory
	}
	if c.MaxCandidateRadiusMeters <= 0 {
		c.MaxCandidateRadiusMeters = def.MaxCandidateRadiusMeters
	}
	if c.MaxCombinations <= 0 {
		c.MaxCombinations = def.MaxCombinations
	}
	if c.TrimmedCandidates <= 0 {
		c.TrimmedCandidates = def.TrimmedCandidates
	}
	if c.SmallCaseMaxCombinations <= 0 {
		c.SmallCaseMaxCombinations = def.SmallCaseMaxCombinations
	}
	if c.RandomRounds < 0 {
		c.RandomRounds = 0
	}
	if c.LocalSearchRounds < 0 {
		c.LocalSearchRounds = 0
	}
	if c.TopK <= 0 {
		c.TopK = def.TopK
	}
	if c.DefaultBudget <= 0 {
		c.DefaultBudget = def.DefaultBudget
	}
	if c.MinComboBudget <= 0 {
		c.MinComboBudget = def.MinComboBudget
	}
	return c
}

type CategoryRequest struct {
	Home       domain.Point
	Private    []domain.Point
	Categories map[string][]domain.Point
	Mode       domain.TravelMode
	Region     string
	DepartAt   *time.Time
	Budget     time.Duration
}

type CategoryResult struct {
	ByTime     []domain.TourCandidate
	ByDistance []domain.TourCandidate
	// Categories holds the branches that survived the pre-filter.
	Categories            map[string][]domain.Point
	CombinationsEvaluated int
	FallbackEdges         int
	IsFallback            bool
	Warning               string
}

// CategoryOptimizer picks one branch per category and a visiting order.
type CategoryOptimizer struct {
	builder *MatrixBuilder
	tours   *TourOptimizer
	cfg     CategoryConfig
}

func NewCategoryOptimizer(builder *MatrixBuilder, tours *TourOptimizer, cfg CategoryConfig) *CategoryOptimizer {
	return &CategoryOptimizer{builder: builder, tours: tours, cfg: cfg.withDefaults()}
}

// categoryPlan indexes the shared matrix: 0 is home, then private points,
// then every category's branches in sorted category order.
type categoryPlan struct {
	names      []string
	private    []int
	candidates [][]int
	m          *domain.CostMatrix
}

type comboResult struct {
	id     string
	choice []int
	byTime domain.TourCandidate
	byDist domain.TourCandidate
}

func (o *CategoryOptimizer) Optimize(ctx context.Context, req CategoryRequest) (_ *CategoryResult, err error) {
	defer obs.Time(ctx, "category.Optimize")(&err)

	if err := req.Home.Coordinates.Validate(); err != nil {
		return nil, fmt.Errorf("optimize categories: home: %w", err)
	}
	for _, p := range req.Private {
		if err := p.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("optimize categories: point %s: %w", p.Label(), err)
		}
	}
	if len(req.Private) == 0 && len(req.Categories) == 0 {
		return nil, &domain.InputError{Field: "destinations", Reason: "at least one destination is required"}
	}

	budget := req.Budget
	if budget <= 0 {
		budget = o.cfg.DefaultBudget
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	filtered, warnings := o.prefilter(req.Home, req.Categories)
	result := &CategoryResult{Categories: filtered}

	names := make([]string, 0, len(filtered))
	for name, cands := range filtered {
		if len(cands) > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	if len(names) == 0 && len(req.Categories) > 0 {
		warnings = append(warnings, "no category has a resolvable branch")
		return o.degraded(req, filtered, result, warnings, nil)
	}

	points := []domain.Point{req.Home}
	plan := &categoryPlan{names: names}
	for _, p := range req.Private {
		plan.private = append(plan.private, len(points))
		points = append(points, p)
	}
	for _, name := range names {
		idx := make([]int, 0, len(filtered[name]))
		for _, p := range filtered[name] {
			idx = append(idx, len(points))
			points = append(points, p)
		}
		plan.candidates = append(plan.candidates, idx)
	}

	if stops := len(req.Private) + len(names); stops > o.tours.cfg.MaxDestinations {
		return nil, &domain.InputError{
			Field:  "destinations",
			Reason: fmt.Sprintf("at most %d stops per tour supported, got %d", o.tours.cfg.MaxDestinations, stops),
		}
	}

	plan.m, err = o.builder.Build(ctx, points, req.Mode, req.Region, req.DepartAt)
	if err != nil {
		return nil, fmt.Errorf("optimize categories: %w", err)
	}
	result.FallbackEdges = plan.m.FallbackEdges()

	combos := o.combinations(plan)
	results := o.evaluateAll(ctx, plan, combos)
	result.CombinationsEvaluated = len(results)

	if len(results) == 0 {
		warnings = append(warnings, "no category combination produced a valid tour")
		return o.degraded(req, filtered, result, warnings, plan)
	}

	result.ByTime = rankCombos(results, domain.CriterionTime, o.cfg.TopK)
	result.ByDistance = rankCombos(results, domain.CriterionDistance, o.cfg.TopK)
	result.Warning = strings.Join(warnings, "; ")

	return result, nil
}

// prefilter keeps, per category, the branches nearest home: those within the
// radius when any are, otherwise the nearest overall, capped per category.
// When the product of branch counts is still too large every category is
// trimmed further.
func (o *CategoryOptimizer) prefilter(home domain.Point, categories map[string][]domain.Point) (map[string][]domain.Point, []string) {
	var warnings []string
	out := make(map[string][]domain.Point, len(categories))

	names := make([]string, 0, len(categories))
	for name := range categories {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		type ranked struct {
			p    domain.Point
			dist float64
		}
		var valid []ranked
		for _, p := range categories[name] {
			if p.Coordinates.Validate() != nil {
				continue
			}
			valid = append(valid, ranked{p: p, dist: domain.HaversineMeters(home.Coordinates, p.Coordinates)})
		}
		sort.SliceStable(valid, func(i, j int) bool { return valid[i].dist < valid[j].dist })

		near := valid[:0:0]
		for _, r := range valid {
			if r.dist <= o.cfg.MaxCandidateRadiusMeters {
				near = append(near, r)
			}
		}
		if len(near) == 0 && len(valid) > 0 {
			warnings = append(warnings, fmt.Sprintf("no %s branch within %.0fm of home", name, o.cfg.MaxCandidateRadiusMeters))
			near = valid
		}
		if len(near) > o.cfg.MaxCandidatesPerCategory {
			near = near[:o.cfg.MaxCandidatesPerCategory]
		}

		kept := make([]domain.Point, 0, len(near))
		for _, r := range near {
			p := r.p
			p.Category = name
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			warnings = append(warnings, fmt.Sprintf("category %s has no branches", name))
		}
		out[name] = kept
	}

	product := 1
	for _, cands := range out {
		if len(cands) > 0 {
			product *= len(cands)
		}
	}
	if product > o.cfg.MaxCombinations {
		for name, cands := range out {
			if len(cands) > o.cfg.TrimmedCandidates {
				out[name] = cands[:o.cfg.TrimmedCandidates]
			}
		}
	}

	return out, warnings
}

// combinations returns the choices to evaluate: the full product in the small
// case, otherwise a deduplicated sample of promising selections.
func (o *CategoryOptimizer) combinations(plan *categoryPlan) [][]int {
	sizes := make([]int, len(plan.candidates))
	product := 1
	for i, c := range plan.candidates {
		sizes[i] = len(c)
		product *= len(c)
	}

	if product <= o.cfg.SmallCaseMaxCombinations {
		out := make([][]int, 0, product)
		choice := make([]int, len(sizes))
		for {
			out = append(out, append([]int(nil), choice...))
			k := len(choice) - 1
			for k >= 0 {
				choice[k]++
				if choice[k] < sizes[k] {
					break
				}
				choice[k] = 0
				k--
			}
			if k < 0 {
				return out
			}
		}
	}

	rng := rand.New(rand.NewPCG(o.cfg.Seed, uint64(product)))
	seen := map[string]struct{}{}
	var out [][]int
	add := func(choice []int) {
		key := choiceKey(choice)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, choice)
	}

	// Branch lists are sorted nearest-first by the pre-filter.
	closest := make([]int, len(sizes))
	farthest := make([]int, len(sizes))
	median := make([]int, len(sizes))
	for i, n := range sizes {
		farthest[i] = n - 1
		median[i] = n / 2
	}
	add(closest)

	for r := 0; r < o.cfg.RandomRounds; r++ {
		add(randomChoice(sizes, rng))
	}

	add(farthest)
	add(median)
	add(randomChoice(sizes, rng))

	return out
}

func randomChoice(sizes []int, rng *rand.Rand) []int {
	choice := make([]int, len(sizes))
	for i, n := range sizes {
		choice[i] = rng.IntN(n)
	}
	return choice
}

func choiceKey(choice []int) string {
	parts := make([]string, len(choice))
	for i, c := range choice {
		parts[i] = strconv.Itoa(c)
	}
	return strings.Join(parts, ",")
}

// evaluateAll runs the tour optimizer on each combination, then in the
// sampled case improves the best one by swapping single branches. It stops
// at the request deadline and returns whatever finished; the first
// combination is always evaluated.
func (o *CategoryOptimizer) evaluateAll(ctx context.Context, plan *categoryPlan, combos [][]int) map[string]*comboResult {
	results := make(map[string]*comboResult, len(combos))
	small := len(combos) > 0 && len(combos) == productOf(plan)

	for i, choice := range combos {
		if ctx.Err() == nil {
			o.evaluate(ctx, plan, choice, len(combos)-i, results)
			continue
		}
		if i > 0 {
			log.Printf("op=category.Optimize budget_exhausted=true evaluated=%d of=%d", len(results), len(combos))
			return results
		}
		// Past the deadline the first combination still gets the minimum budget.
		first, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.MinComboBudget)
		o.evaluate(first, plan, choice, 1, results)
		cancel()
	}

	if small || o.cfg.LocalSearchRounds == 0 || len(results) == 0 {
		return results
	}

	best := bestCombo(results)
	for round := 0; round < o.cfg.LocalSearchRounds; round++ {
		improved := false
		for cat := range plan.candidates {
			for alt := range plan.candidates[cat] {
				if ctx.Err() != nil {
					return results
				}
				if alt == best.choice[cat] {
					continue
				}
				next := append([]int(nil), best.choice...)
				next[cat] = alt
				r := o.evaluate(ctx, plan, next, 1, results)
				if r != nil && r.byTime.TotalTravelSeconds < best.byTime.TotalTravelSeconds {
					best = r
					improved = true
				}
			}
		}
		if !improved {
			break
		}
	}

	return results
}

func productOf(plan *categoryPlan) int {
	p := 1
	for _, c := range plan.candidates {
		p *= len(c)
	}
	return p
}

func bestCombo(results map[string]*comboResult) *comboResult {
	var best *comboResult
	for _, r := range results {
		if best == nil || r.byTime.TotalTravelSeconds < best.byTime.TotalTravelSeconds ||
			(r.byTime.TotalTravelSeconds == best.byTime.TotalTravelSeconds && r.id < best.id) {
			best = r
		}
	}
	return best
}

// evaluate optimizes one combination, records it under its id and returns it.
// Already evaluated combinations are returned from results.
func (o *CategoryOptimizer) evaluate(
	ctx context.Context,
	plan *categoryPlan,
	choice []int,
	remaining int,
	results map[string]*comboResult,
) *comboResult {
	selection := make(domain.CategorySelection, len(choice))
	indices := make([]int, 0, 1+len(plan.private)+len(choice))
	indices = append(indices, 0)
	indices = append(indices, plan.private...)
	for cat, c := range choice {
		idx := plan.candidates[cat][c]
		indices = append(indices, idx)
		selection[plan.names[cat]] = plan.m.Points[idx]
	}

	id := CombinationID(selection)
	if r, ok := results[id]; ok {
		return r
	}

	sub, err := plan.m.Sub(indices)
	if err != nil {
		log.Printf("op=category.evaluate combination=%q err=%v", id, err)
		return nil
	}

	per := o.cfg.MinComboBudget
	if deadline, ok := ctx.Deadline(); ok && remaining > 0 {
		if share := time.Until(deadline) / time.Duration(remaining); share > per {
			per = share
		}
	}

	ranked, _, err := o.tours.Solve(ctx, sub, nil, domain.AlgorithmAuto, per)
	if err != nil {
		log.Printf("op=category.evaluate combination=%q err=%v", id, err)
		return nil
	}
	byTime, byDist := ranked[domain.CriterionTime], ranked[domain.CriterionDistance]
	if len(byTime) == 0 || len(byDist) == 0 {
		return nil
	}

	r := &comboResult{
		id:     id,
		choice: append([]int(nil), choice...),
		byTime: tagCandidate(byTime[0], indices, selection, id),
		byDist: tagCandidate(byDist[0], indices, selection, id),
	}
	results[id] = r
	return r
}

// tagCandidate maps sub-matrix positions back to the shared matrix and
// attaches the selection.
func tagCandidate(c domain.TourCandidate, indices []int, sel domain.CategorySelection, id string) domain.TourCandidate {
	order := make([]int, len(c.VisitOrder))
	for i, v := range c.VisitOrder {
		order[i] = indices[v]
	}
	c.VisitOrder = order
	c.Selection = sel
	c.CombinationID = id
	return c
}

// CombinationID identifies a selection independent of map order.
func CombinationID(sel domain.CategorySelection) string {
	names := make([]string, 0, len(sel))
	for name := range sel {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		p := sel[name]
		id := p.ID
		if id == "" {
			id = p.Coordinates.String()
		}
		parts[i] = name + "=" + id
	}
	return strings.Join(parts, "|")
}

// rankCombos keeps the best candidate per combination under c and returns
// the top k combinations. Ties are broken by combination id.
func rankCombos(results map[string]*comboResult, c domain.Criterion, k int) []domain.TourCandidate {
	all := make([]domain.TourCandidate, 0, len(results))
	for _, r := range results {
		if c == domain.CriterionDistance {
			all = append(all, r.byDist)
		} else {
			all = append(all, r.byTime)
		}
	}

	sort.Slice(all, func(i, j int) bool {
		ci, cj := all[i].Cost(c), all[j].Cost(c)
		if ci != cj {
			return ci < cj
		}
		return all[i].CombinationID < all[j].CombinationID
	})

	if len(all) > k {
		all = all[:k]
	}
	for i := range all {
		all[i].Rank = i + 1
		all[i].Criterion = c
	}
	return all
}

// degraded returns an unoptimized route through the private points and the
// first branch of every category that has one.
func (o *CategoryOptimizer) degraded(
	req CategoryRequest,
	filtered map[string][]domain.Point,
	result *CategoryResult,
	warnings []string,
	plan *categoryPlan,
) (*CategoryResult, error) {
	points := []domain.Point{req.Home}
	points = append(points, req.Private...)

	names := make([]string, 0, len(filtered))
	for name := range filtered {
		names = append(names, name)
	}
	sort.Strings(names)

	sel := domain.CategorySelection{}
	for _, name := range names {
		if len(filtered[name]) > 0 {
			sel[name] = filtered[name][0]
			points = append(points, filtered[name][0])
		}
	}

	var (
		m   *domain.CostMatrix
		err error
	)
	if plan != nil {
		indices := []int{0}
		indices = append(indices, plan.private...)
		for _, c := range plan.candidates {
			indices = append(indices, c[0])
		}
		m, err = plan.m.Sub(indices)
	} else {
		m, err = o.builder.Estimate(points, req.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("optimize categories: degraded route: %w", err)
	}

	order := make([]int, 0, m.Size()-1)
	for i := 1; i < m.Size(); i++ {
		order = append(order, i)
	}

	id := CombinationID(sel)
	for _, c := range []domain.Criterion{domain.CriterionTime, domain.CriterionDistance} {
		cand := buildCandidate(m, order, c, domain.AlgorithmNone)
		cand.Rank = 1
		cand.Selection = sel
		cand.CombinationID = id
		cand.IsFallbackRoute = true
		if c == domain.CriterionTime {
			result.ByTime = []domain.TourCandidate{cand}
		} else {
			result.ByDistance = []domain.TourCandidate{cand}
		}
	}

	result.IsFallback = true
	result.Warning = strings.Join(warnings, "; ")
	log.Printf("op=category.Optimize fallback_route=true warning=%q", result.Warning)
	return result, nil
}
