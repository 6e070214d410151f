package services

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Planner is the entry point used by the HTTP layer and the tools.
type Planner struct {
	client     *RouteClient
	builder    *MatrixBuilder
	tours      *TourOptimizer
	categories *CategoryOptimizer
	cache      ports.EdgeCache
	resolver   ResolverConfig
}

func NewPlanner(
	client *RouteClient,
	builder *MatrixBuilder,
	tours *TourOptimizer,
	categories *CategoryOptimizer,
	cache ports.EdgeCache,
	resolver ResolverConfig,
) *Planner {
	def := DefaultResolverConfig()
	if resolver.SearchLimit <= 0 {
		resolver.SearchLimit = def.SearchLimit
	}
	if resolver.SearchRadiusMeters <= 0 {
		resolver.SearchRadiusMeters = def.SearchRadiusMeters
	}
	if resolver.DefaultDwell <= 0 {
		resolver.DefaultDwell = def.DefaultDwell
	}
	if resolver.Workers <= 0 {
		resolver.Workers = def.Workers
	}
	return &Planner{
		client:     client,
		builder:    builder,
		tours:      tours,
		categories: categories,
		cache:      cache,
		resolver:   resolver,
	}
}

type FixedRequest struct {
	Home         domain.Point
	Destinations []domain.Point
	Mode         domain.TravelMode
	Region       string
	Algorithm    domain.Algorithm
	DepartAt     *time.Time
	Budget       time.Duration
}

type FixedResult struct {
	ByTime        []domain.TourCandidate
	ByDistance    []domain.TourCandidate
	Algorithm     domain.Algorithm
	FallbackEdges int
}

// OptimizeFixedDestinations ranks visiting orders over a known set of points.
func (p *Planner) OptimizeFixedDestinations(ctx context.Context, req FixedRequest) (_ *FixedResult, err error) {
	defer obs.Time(ctx, "planner.OptimizeFixedDestinations")(&err)

	if len(req.Destinations) == 0 {
		return nil, &domain.InputError{Field: "destinations", Reason: "at least one destination is required"}
	}
	if limit := p.tours.cfg.MaxDestinations; len(req.Destinations) > limit {
		return nil, &domain.InputError{
			Field:  "destinations",
			Reason: fmt.Sprintf("at most %d destinations supported, got %d", limit, len(req.Destinations)),
		}
	}

	algo := req.Algorithm
	if algo == "" {
		algo = domain.AlgorithmAuto
	}

	points := make([]domain.Point, 0, len(req.Destinations)+1)
	home := withID(req.Home)
	home.DwellSeconds = 0
	points = append(points, home)
	for _, d := range req.Destinations {
		if d.DwellSeconds < 0 {
			return nil, &domain.InputError{Field: "dwell", Reason: fmt.Sprintf("negative dwell for %s", d.Label())}
		}
		points = append(points, withID(d))
	}
	for _, pt := range points {
		if err := pt.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("optimize fixed destinations: point %s: %w", pt.Label(), err)
		}
	}

	m, err := p.builder.Build(ctx, points, req.Mode, req.Region, req.DepartAt)
	if err != nil {
		return nil, fmt.Errorf("optimize fixed destinations: %w", err)
	}

	ranked, used, err := p.tours.Solve(ctx, m, nil, algo, req.Budget)
	if err != nil {
		return nil, fmt.Errorf("optimize fixed destinations: %w", err)
	}

	return &FixedResult{
		ByTime:        withDeparture(ranked[domain.CriterionTime], req.DepartAt),
		ByDistance:    withDeparture(ranked[domain.CriterionDistance], req.DepartAt),
		Algorithm:     used,
		FallbackEdges: m.FallbackEdges(),
	}, nil
}

type CategoryPlanRequest struct {
	Home     domain.Point
	Stops    []NamedStop
	Mode     domain.TravelMode
	Region   string
	DepartAt *time.Time
	Budget   time.Duration
}

type CategoryPlan struct {
	Resolution *Resolution
	Result     *CategoryResult
	Warning    string
}

// OptimizeWithCategories resolves names into private points and categories,
// then chooses a branch per category and a visiting order.
func (p *Planner) OptimizeWithCategories(ctx context.Context, req CategoryPlanRequest) (_ *CategoryPlan, err error) {
	defer obs.Time(ctx, "planner.OptimizeWithCategories")(&err)

	if err := req.Home.Coordinates.Validate(); err != nil {
		return nil, fmt.Errorf("optimize with categories: home: %w", err)
	}

	res, err := ResolveStops(ctx, p.client, req.Home.Coordinates, req.Stops, req.Region, p.resolver)
	if err != nil {
		return nil, fmt.Errorf("optimize with categories: %w", err)
	}

	plan := &CategoryPlan{Resolution: res}
	if len(res.Private) == 0 && len(res.Categories) == 0 {
		plan.Warning = "no destination could be resolved"
		return plan, nil
	}

	home := withID(req.Home)
	home.DwellSeconds = 0
	result, err := p.categories.Optimize(ctx, CategoryRequest{
		Home:       home,
		Private:    res.Private,
		Categories: res.Categories,
		Mode:       req.Mode,
		Region:     req.Region,
		DepartAt:   req.DepartAt,
		Budget:     req.Budget,
	})
	if err != nil {
		return nil, fmt.Errorf("optimize with categories: %w", err)
	}

	result.ByTime = withDeparture(result.ByTime, req.DepartAt)
	result.ByDistance = withDeparture(result.ByDistance, req.DepartAt)
	plan.Result = result
	plan.Warning = result.Warning
	return plan, nil
}

func (p *Planner) CacheStats() domain.CacheStats { return p.cache.Stats() }

// CacheClearExpired drops expired entries and returns how many were removed.
func (p *Planner) CacheClearExpired() int { return p.cache.PurgeExpired() }

func (p *Planner) CacheClearAll() int { return p.cache.Clear() }

func withID(pt domain.Point) domain.Point {
	if pt.ID == "" {
		pt.ID = uuid.NewString()
	}
	return pt
}

// withDeparture anchors every candidate's schedule at departAt. Without a
// departure the schedules keep offsets only.
func withDeparture(cands []domain.TourCandidate, departAt *time.Time) []domain.TourCandidate {
	if departAt == nil {
		return cands
	}
	out := make([]domain.TourCandidate, len(cands))
	for i, c := range cands {
		out[i] = c.WithDeparture(*departAt)
	}
	return out
}
