package services

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// EdgeSource resolves one pair to an edge. *RouteClient satisfies it.
type EdgeSource interface {
	Route(ctx context.Context, a, b domain.Coordinates, mode domain.TravelMode, region string, departAt *time.Time) (domain.CostEdge, error)
	Fallback(a, b domain.Coordinates, mode domain.TravelMode) (domain.CostEdge, error)
}

type MatrixBuilderConfig struct {
	Workers       int
	LookupTimeout time.Duration
	BuildTimeout  time.Duration
	// Symmetric reuses one lookup for [i][j] and [j][i].
	Symmetric bool
}

func DefaultMatrixBuilderConfig() MatrixBuilderConfig {
	return MatrixBuilderConfig{
		Workers:       4,
		LookupTimeout: 30 * time.Second,
		BuildTimeout:  2 * time.Minute,
		Symmetric:     true,
	}
}

// MatrixBuilder fills a CostMatrix by fanning pair lookups out to a bounded pool.
type MatrixBuilder struct {
	source EdgeSource
	cfg    MatrixBuilderConfig
}

func NewMatrixBuilder(source EdgeSource, cfg MatrixBuilderConfig) *MatrixBuilder {
	def := DefaultMatrixBuilderConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = def.LookupTimeout
	}
	if cfg.BuildTimeout <= 0 {
		cfg.BuildTimeout = def.BuildTimeout
	}
	return &MatrixBuilder{source: source, cfg: cfg}
}

type pairJob struct{ i, j int }

// Build returns a complete matrix over points. A lookup that fails is replaced
// by the source's fallback estimate; only when that also fails does the build
// fail with a *domain.RouteUnavailableError.
func (b *MatrixBuilder) Build(
	ctx context.Context,
	points []domain.Point,
	mode domain.TravelMode,
	region string,
	departAt *time.Time,
) (_ *domain.CostMatrix, err error) {
	defer obs.Time(ctx, "matrix.Build")(&err)

	for i, p := range points {
		if err := p.Coordinates.Validate(); err != nil {
			return nil, fmt.Errorf("build matrix: point %d (%s): %w", i, p.Label(), err)
		}
	}

	m := domain.NewCostMatrix(points, b.cfg.Symmetric)
	n := len(points)
	if n < 2 {
		return m, nil
	}

	jobs := make([]pairJob, 0, n*(n-1))
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || (b.cfg.Symmetric && j < i) {
				continue
			}
			jobs = append(jobs, pairJob{i: i, j: j})
		}
	}

	buildCtx, cancel := context.WithTimeout(ctx, b.cfg.BuildTimeout)
	defer cancel()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(buildCtx)
	g.SetLimit(b.cfg.Workers)

	for _, job := range jobs {
		g.Go(func() error {
			from, to := points[job.i], points[job.j]

			edge, err := b.lookup(gctx, from.Coordinates, to.Coordinates, mode, region, departAt)
			if err != nil {
				return &domain.RouteUnavailableError{From: from.Label(), To: to.Label(), Err: err}
			}

			mu.Lock()
			m.Set(job.i, job.j, edge)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build matrix: %w", err)
	}

	if err := m.Complete(); err != nil {
		return nil, fmt.Errorf("build matrix: %w", err)
	}

	if fb := m.FallbackEdges(); fb > 0 {
		log.Printf("op=matrix.Build points=%d lookups=%d fallback_edges=%d", n, len(jobs), fb)
	}

	return m, nil
}

func (b *MatrixBuilder) lookup(
	ctx context.Context,
	from, to domain.Coordinates,
	mode domain.TravelMode,
	region string,
	departAt *time.Time,
) (domain.CostEdge, error) {
	lctx, cancel := context.WithTimeout(ctx, b.cfg.LookupTimeout)
	defer cancel()

	edge, err := b.source.Route(lctx, from, to, mode, region, departAt)
	if err == nil {
		return edge, nil
	}
	if domain.IsInputError(err) {
		return domain.CostEdge{}, err
	}

	fb, ferr := b.source.Fallback(from, to, mode)
	if ferr != nil {
		return domain.CostEdge{}, errors.Join(err, ferr)
	}
	return fb, nil
}

// Estimate returns a complete matrix of fallback estimates without calling
// the provider. It backs degraded routes.
func (b *MatrixBuilder) Estimate(points []domain.Point, mode domain.TravelMode) (*domain.CostMatrix, error) {
	m := domain.NewCostMatrix(points, true)
	for i := range points {
		for j := i + 1; j < len(points); j++ {
			e, err := b.source.Fallback(points[i].Coordinates, points[j].Coordinates, mode)
			if err != nil {
				return nil, &domain.RouteUnavailableError{From: points[i].Label(), To: points[j].Label(), Err: err}
			}
			m.Set(i, j, e)
		}
	}
	return m, nil
}
