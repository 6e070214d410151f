package distance

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/ports"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
)

type MockPair struct {
	From, To domain.Coordinates
	Meters   int
	Seconds  int
}

// MockProvider is a table-driven RouteProvider. Pairs are looked up in both
// directions; scripted failures are consumed before the table is consulted.
type MockProvider struct {
	mu       sync.Mutex
	m        map[string]domain.CostEdge
	places   map[string][]ports.Place
	failures []error

	routeCalls  atomic.Int64
	searchCalls atomic.Int64
}

func NewMockProvider(pairs []MockPair) *MockProvider {
	m := make(map[string]domain.CostEdge, 2*len(pairs))
	for _, p := range pairs {
		e := domain.CostEdge{DistanceMeters: p.Meters, DurationSeconds: p.Seconds}
		m[mockKey(p.From, p.To)] = e
		m[mockKey(p.To, p.From)] = e
	}
	return &MockProvider{m: m, places: map[string][]ports.Place{}}
}

func mockKey(a, b domain.Coordinates) string {
	return a.Normalized().String() + "|" + b.Normalized().String()
}

func (p *MockProvider) Name() string { return "mock" }

// AddPlaces registers search results for a keyword, matched case-insensitively.
func (p *MockProvider) AddPlaces(keywords string, places ...ports.Place) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := strings.ToLower(strings.TrimSpace(keywords))
	p.places[k] = append(p.places[k], places...)
}

// FailNext queues errors returned by the next Route calls, in order.
func (p *MockProvider) FailNext(errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = append(p.failures, errs...)
}

func (p *MockProvider) RouteCalls() int64  { return p.routeCalls.Load() }
func (p *MockProvider) SearchCalls() int64 { return p.searchCalls.Load() }

func (p *MockProvider) Route(ctx context.Context, q ports.RouteQuery) (domain.CostEdge, error) {
	p.routeCalls.Add(1)

	if err := ctx.Err(); err != nil {
		return domain.CostEdge{}, err
	}

	p.mu.Lock()
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		p.mu.Unlock()
		return domain.CostEdge{}, err
	}
	e, ok := p.m[mockKey(q.Origin, q.Destination)]
	p.mu.Unlock()

	if !ok {
		return domain.CostEdge{}, &domain.ProviderError{
			Provider: "mock",
			Kind:     domain.ProviderPermanent,
			Err:      fmt.Errorf("%w: missing pair %s -> %s", domain.ErrNoRoute, q.Origin, q.Destination),
		}
	}

	return e, nil
}

func (p *MockProvider) Search(ctx context.Context, q ports.SearchQuery) ([]ports.Place, error) {
	p.searchCalls.Add(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	found := p.places[strings.ToLower(strings.TrimSpace(q.Keywords))]
	if q.Limit > 0 && len(found) > q.Limit {
		found = found[:q.Limit]
	}
	out := make([]ports.Place, len(found))
	copy(out, found)
	return out, nil
}
