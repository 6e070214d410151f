package ports

import (
	"context"
	"errand-route-service/internal/domain"
	"time"
)

// A single origin -> destination routing question.
type RouteQuery struct {
	Origin      domain.Coordinates
	Destination domain.Coordinates
	Mode        domain.TravelMode
	Region      string
	// DepartAt is an optional traffic hint.
	DepartAt *time.Time
}

// Keyword search around an optional focus point.
type SearchQuery struct {
	Keywords     string
	Region       string
	Near         *domain.Coordinates
	RadiusMeters int
	Limit        int
}

// A place returned by the provider's keyword search.
type Place struct {
	ID          string
	Name        string
	Address     string
	Coordinates domain.Coordinates
}

// Contract for the external routing/POI provider.
//
// Implementations classify failures as *domain.ProviderError so callers can
// decide whether to retry.
type RouteProvider interface {
	Name() string
	// Return travel distance, duration and geometry between two coordinates.
	Route(ctx context.Context, q RouteQuery) (domain.CostEdge, error)
	// Return places matching the keywords. Zero results is not an error.
	Search(ctx context.Context, q SearchQuery) ([]Place, error)
}
