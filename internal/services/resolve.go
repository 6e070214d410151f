package services

import (
	"context"
	"errand-route-service/internal/domain"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Searcher resolves a free-text destination into concrete places.
type Searcher interface {
	SearchCandidates(
		ctx context.Context,
		query string,
		near *domain.Coordinates,
		region string,
		radiusMeters int,
		limit int,
	) ([]domain.Point, error)
}

// NamedStop is a destination given by name, such as "post office" or a shop brand.
type NamedStop struct {
	Name string
	// Dwell overrides the default time spent at the stop when positive.
	Dwell time.Duration
}

// Resolution classifies named stops by how many places matched.
type Resolution struct {
	Private    []domain.Point
	Categories map[string][]domain.Point
	Unresolved []string
}

type ResolverConfig struct {
	SearchLimit        int
	SearchRadiusMeters int
	DefaultDwell       time.Duration
	Workers            int
}

func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		SearchLimit:        20,
		SearchRadiusMeters: 10000,
		DefaultDwell:       10 * time.Minute,
		Workers:            4,
	}
}

// ResolveStops searches every name around home. One hit becomes a private
// point, several hits a category with one branch per hit, and no hits an
// unresolved name. Search failures are reported as unresolved.
func ResolveStops(
	ctx context.Context,
	searcher Searcher,
	home domain.Coordinates,
	stops []NamedStop,
	region string,
	cfg ResolverConfig,
) (*Resolution, error) {
	names := make([]NamedStop, 0, len(stops))
	seen := map[string]bool{}
	for _, s := range stops {
		s.Name = strings.TrimSpace(s.Name)
		key := strings.ToLower(s.Name)
		if s.Name == "" || seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, s)
	}
	if len(names) == 0 {
		return nil, &domain.InputError{Field: "destinations", Reason: "at least one destination name is required"}
	}

	hits := make([][]domain.Point, len(names))
	var (
		mu     sync.Mutex
		failed = map[int]bool{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, s := range names {
		g.Go(func() error {
			pts, err := searcher.SearchCandidates(gctx, s.Name, &home, region, cfg.SearchRadiusMeters, cfg.SearchLimit)
			if err != nil {
				if domain.IsInputError(err) {
					return err
				}
				log.Printf("op=resolve.search name=%q err=%v", s.Name, err)
				mu.Lock()
				failed[i] = true
				mu.Unlock()
				return nil
			}
			hits[i] = pts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolve stops: %w", err)
	}

	res := &Resolution{Categories: map[string][]domain.Point{}}
	for i, s := range names {
		dwell := cfg.DefaultDwell
		if s.Dwell > 0 {
			dwell = s.Dwell
		}

		pts := hits[i]
		switch {
		case failed[i] || len(pts) == 0:
			res.Unresolved = append(res.Unresolved, s.Name)
		case len(pts) == 1:
			p := pts[0]
			p.DwellSeconds = int(dwell.Seconds())
			res.Private = append(res.Private, p)
		default:
			branches := make([]domain.Point, len(pts))
			for j, p := range pts {
				p.DwellSeconds = int(dwell.Seconds())
				p.Category = s.Name
				branches[j] = p
			}
			res.Categories[s.Name] = branches
		}
	}

	log.Printf("op=resolve.stops names=%d private=%d categories=%d unresolved=%d",
		len(names), len(res.Private), len(res.Categories), len(res.Unresolved))
	return res, nil
}
