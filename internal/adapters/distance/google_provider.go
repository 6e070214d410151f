package distance

import (
	"context"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

const googleName = "google"

// GoogleProvider implements ports.RouteProvider with the Google Maps
// Directions and Places Text Search APIs.
type GoogleProvider struct {
	client   *maps.Client
	language string
}

// NewGoogleProvider creates a provider with the given API key. baseURL
// overrides the API host and is only set in tests.
func NewGoogleProvider(apiKey, language, baseURL string) (*GoogleProvider, error) {
	opts := []maps.ClientOption{maps.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, maps.WithBaseURL(baseURL))
	}

	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleProvider{client: client, language: language}, nil
}

func (g *GoogleProvider) Name() string { return googleName }

func googleMode(mode domain.TravelMode) maps.Mode {
	switch mode {
	case domain.TravelModeWalking:
		return maps.TravelModeWalking
	case domain.TravelModeBicycling:
		return maps.TravelModeBicycling
	case domain.TravelModeTransit:
		return maps.TravelModeTransit
	default:
		return maps.TravelModeDriving
	}
}

func (g *GoogleProvider) Route(ctx context.Context, q ports.RouteQuery) (_ domain.CostEdge, err error) {
	defer obs.Time(ctx, "google.Route")(&err)

	r := &maps.DirectionsRequest{
		Origin:      q.Origin.String(),
		Destination: q.Destination.String(),
		Mode:        googleMode(q.Mode),
		Region:      strings.ToLower(q.Region),
		Language:    g.language,
	}
	if q.DepartAt != nil {
		r.DepartureTime = strconv.FormatInt(q.DepartAt.Unix(), 10)
	}

	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return domain.CostEdge{}, classifyGoogleError(err)
	}

	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return domain.CostEdge{}, &domain.ProviderError{Provider: googleName, Kind: domain.ProviderPermanent, Err: domain.ErrNoRoute}
	}

	leg := routes[0].Legs[0]
	edge := domain.CostEdge{
		DistanceMeters:  leg.Distance.Meters,
		DurationSeconds: int(math.Round(leg.Duration.Seconds())),
		Polyline:        routes[0].OverviewPolyline.Points,
	}
	for _, st := range leg.Steps {
		if st != nil && st.HTMLInstructions != "" {
			edge.Steps = append(edge.Steps, st.HTMLInstructions)
		}
	}

	return edge, nil
}

func (g *GoogleProvider) Search(ctx context.Context, q ports.SearchQuery) (_ []ports.Place, err error) {
	defer obs.Time(ctx, "google.Search")(&err)

	query := strings.Join(strings.Fields(q.Keywords), " ")
	if query == "" {
		return nil, nil
	}

	r := &maps.TextSearchRequest{
		Query:    query,
		Region:   strings.ToLower(q.Region),
		Language: g.language,
	}
	if q.Near != nil {
		r.Location = &maps.LatLng{Lat: q.Near.Lat, Lng: q.Near.Lon}
		if q.RadiusMeters > 0 {
			r.Radius = uint(q.RadiusMeters)
		}
	}

	resp, err := g.client.TextSearch(ctx, r)
	if err != nil {
		if isGoogleStatus(err, "ZERO_RESULTS") {
			return nil, nil
		}
		return nil, classifyGoogleError(err)
	}

	out := make([]ports.Place, 0, len(resp.Results))
	for _, result := range resp.Results {
		out = append(out, ports.Place{
			ID:      result.PlaceID,
			Name:    result.Name,
			Address: result.FormattedAddress,
			Coordinates: domain.Coordinates{
				Lat: result.Geometry.Location.Lat,
				Lon: result.Geometry.Location.Lng,
			},
		})
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}

	return out, nil
}

// The maps client reports API status codes inside the error text ("maps: STATUS - message").
func isGoogleStatus(err error, status string) bool {
	return err != nil && strings.Contains(err.Error(), status)
}

// classifyGoogleError maps OVER_QUERY_LIMIT to quota, ZERO_RESULTS and
// NOT_FOUND to a permanent no-route, invalid or denied requests to permanent,
// and everything else to transient.
func classifyGoogleError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}

	pe := &domain.ProviderError{Provider: googleName, Kind: domain.ProviderTransient, Err: err}
	switch {
	case isGoogleStatus(err, "OVER_QUERY_LIMIT"), isGoogleStatus(err, "OVER_DAILY_LIMIT"):
		pe.Kind = domain.ProviderQuota
	case isGoogleStatus(err, "ZERO_RESULTS"), isGoogleStatus(err, "NOT_FOUND"):
		pe.Kind = domain.ProviderPermanent
		pe.Err = fmt.Errorf("%w: %v", domain.ErrNoRoute, err)
	case isGoogleStatus(err, "INVALID_REQUEST"), isGoogleStatus(err, "REQUEST_DENIED"), isGoogleStatus(err, "MAX_ROUTE_LENGTH_EXCEEDED"):
		pe.Kind = domain.ProviderPermanent
	}
	return pe
}
