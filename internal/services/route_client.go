package services

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/ports"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Limiter gates outbound provider calls.
type Limiter interface {
	Wait(ctx context.Context) error
}

type RouteClientConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries  int
	BaseBackoff time.Duration
	// QuotaBackoffMultiplier stretches the backoff after a quota error.
	QuotaBackoffMultiplier int
	// DisableFallback makes exhausted lookups fail with ErrNoRoute instead of
	// returning a great-circle estimate.
	DisableFallback     bool
	MinFallbackDuration time.Duration
}

func DefaultRouteClientConfig() RouteClientConfig {
	return RouteClientConfig{
		MaxRetries:             3,
		BaseBackoff:            200 * time.Millisecond,
		QuotaBackoffMultiplier: 4,
		MinFallbackDuration:    60 * time.Second,
	}
}

// RouteClient fetches travel costs from a provider through the shared rate
// limiter, a retry policy and the edge cache. It is safe for concurrent use.
type RouteClient struct {
	provider ports.RouteProvider
	limiter  Limiter
	cache    ports.EdgeCache
	cfg      RouteClientConfig

	group singleflight.Group
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRouteClient(provider ports.RouteProvider, limiter Limiter, cache ports.EdgeCache, cfg RouteClientConfig) (*RouteClient, error) {
	if provider == nil {
		return nil, errors.New("route client: provider is nil")
	}
	if limiter == nil {
		return nil, errors.New("route client: limiter is nil")
	}

	def := DefaultRouteClientConfig()
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = def.BaseBackoff
	}
	if cfg.QuotaBackoffMultiplier <= 0 {
		cfg.QuotaBackoffMultiplier = def.QuotaBackoffMultiplier
	}
	if cfg.MinFallbackDuration <= 0 {
		cfg.MinFallbackDuration = def.MinFallbackDuration
	}

	return &RouteClient{
		provider: provider,
		limiter:  limiter,
		cache:    cache,
		cfg:      cfg,
		sleep:    sleepCtx,
	}, nil
}

// Route returns the travel cost between a and b. Provider failures that
// survive the retry policy degrade to a great-circle estimate flagged
// IsFallback, unless fallback is disabled.
func (c *RouteClient) Route(
	ctx context.Context,
	a, b domain.Coordinates,
	mode domain.TravelMode,
	region string,
	departAt *time.Time,
) (domain.CostEdge, error) {
	if err := a.Validate(); err != nil {
		return domain.CostEdge{}, fmt.Errorf("route client: origin: %w", err)
	}
	if err := b.Validate(); err != nil {
		return domain.CostEdge{}, fmt.Errorf("route client: destination: %w", err)
	}

	if a.Normalized() == b.Normalized() {
		return domain.CostEdge{}, nil
	}

	if c.cache != nil {
		if e, ok := c.cache.Get(a, b, mode, region); ok {
			return e, nil
		}
	}

	key := flightKey(a, b, mode, region, departAt)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.fetch(ctx, ports.RouteQuery{Origin: a, Destination: b, Mode: mode, Region: region, DepartAt: departAt})
	})
	if err == nil {
		edge := v.(domain.CostEdge)
		if c.cache != nil {
			c.cache.Set(ctx, a, b, mode, region, edge)
		}
		return edge, nil
	}

	if c.cfg.DisableFallback {
		return domain.CostEdge{}, fmt.Errorf("route client: %s -> %s: %w", a, b, errors.Join(domain.ErrNoRoute, err))
	}

	log.Printf("op=route.client.Route provider=%s from=%s to=%s mode=%s fallback=true err=%v",
		c.provider.Name(), a, b, mode, err)

	return c.Fallback(a, b, mode)
}

func (c *RouteClient) fetch(ctx context.Context, q ports.RouteQuery) (domain.CostEdge, error) {
	var edge domain.CostEdge
	err := c.withRetry(ctx, "route", func() error {
		e, err := c.provider.Route(ctx, q)
		if err != nil {
			return err
		}
		edge = e
		return nil
	})
	return edge, err
}

// withRetry runs call through the limiter, retrying transient and quota
// failures with exponential backoff. Quota failures back off longer.
// Permanent failures and input errors are returned immediately.
func (c *RouteClient) withRetry(ctx context.Context, op string, call func() error) error {
	backoff := c.cfg.BaseBackoff

	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%s: %w (last provider error: %v)", op, err, lastErr)
			}
			return fmt.Errorf("%s: wait for rate limiter: %w", op, err)
		}

		err := call()
		if err == nil {
			return nil
		}
		lastErr = err

		var pe *domain.ProviderError
		if !errors.As(err, &pe) || !pe.Retryable() {
			return err
		}
		if attempt == c.cfg.MaxRetries {
			break
		}

		wait := backoff
		if pe.Kind == domain.ProviderQuota {
			wait *= time.Duration(c.cfg.QuotaBackoffMultiplier)
		}
		log.Printf("op=route.client.%s provider=%s attempt=%d kind=%s backoff=%dms err=%v",
			op, c.provider.Name(), attempt+1, pe.Kind, wait.Milliseconds(), err)

		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: %w (last provider error: %v)", op, err, lastErr)
		}
		backoff *= 2
	}

	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// Fallback estimates the edge from great-circle distance and a per-mode speed.
// The result is flagged IsFallback and is never cached. With fallback disabled
// it fails with ErrNoRoute.
func (c *RouteClient) Fallback(a, b domain.Coordinates, mode domain.TravelMode) (domain.CostEdge, error) {
	if err := a.Validate(); err != nil {
		return domain.CostEdge{}, fmt.Errorf("route fallback: origin: %w", err)
	}
	if err := b.Validate(); err != nil {
		return domain.CostEdge{}, fmt.Errorf("route fallback: destination: %w", err)
	}
	if c.cfg.DisableFallback {
		return domain.CostEdge{}, fmt.Errorf("route fallback: %s -> %s: disabled: %w", a, b, domain.ErrNoRoute)
	}

	if a.Normalized() == b.Normalized() {
		return domain.CostEdge{IsFallback: true}, nil
	}

	meters := domain.HaversineMeters(a, b)
	seconds := int(math.Round(meters / fallbackSpeed(mode) * 60))
	if floor := int(c.cfg.MinFallbackDuration.Seconds()); seconds < floor {
		seconds = floor
	}

	return domain.CostEdge{
		DistanceMeters:  int(math.Round(meters)),
		DurationSeconds: seconds,
		IsFallback:      true,
	}, nil
}

// fallbackSpeed returns meters per minute for the great-circle estimate.
func fallbackSpeed(mode domain.TravelMode) float64 {
	switch mode {
	case domain.TravelModeWalking:
		return 70
	case domain.TravelModeBicycling:
		return 250
	case domain.TravelModeTransit:
		return 300
	default:
		return 500
	}
}

// SearchCandidates returns places matching query as points. Zero results is
// not an error. Points without a provider id get a generated one.
func (c *RouteClient) SearchCandidates(
	ctx context.Context,
	query string,
	near *domain.Coordinates,
	region string,
	radiusMeters int,
	limit int,
) ([]domain.Point, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &domain.InputError{Field: "query", Reason: "must not be empty"}
	}
	if near != nil {
		if err := near.Validate(); err != nil {
			return nil, fmt.Errorf("search candidates: %w", err)
		}
	}

	var places []ports.Place
	err := c.withRetry(ctx, "search", func() error {
		p, err := c.provider.Search(ctx, ports.SearchQuery{
			Keywords:     query,
			Region:       region,
			Near:         near,
			RadiusMeters: radiusMeters,
			Limit:        limit,
		})
		if err != nil {
			return err
		}
		places = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("search candidates %q: %w", query, err)
	}

	out := make([]domain.Point, 0, len(places))
	for _, p := range places {
		if p.Coordinates.Validate() != nil {
			continue
		}

		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		name := p.Name
		if name == "" {
			name = query
		}
		out = append(out, domain.Point{
			ID:          id,
			Name:        name,
			Address:     p.Address,
			Coordinates: p.Coordinates,
		})
	}

	return out, nil
}

func flightKey(a, b domain.Coordinates, mode domain.TravelMode, region string, departAt *time.Time) string {
	a, b = a.Normalized(), b.Normalized()
	if b.Less(a) {
		a, b = b, a
	}
	dep := ""
	if departAt != nil {
		dep = strconv.FormatInt(departAt.Unix(), 10)
	}
	return a.String() + "|" + b.String() + "|" + string(mode) + "|" + strings.ToLower(region) + "|" + dep
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
