package distance

import (
	"bytes"
	"context"
	"encoding/json"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"
)

const orsName = "ors"

// ORSProvider implements ports.RouteProvider using OpenRouteService.
// It is safe for concurrent use.
type ORSProvider struct {
	session *http.Client
	apiKey  string
	baseURL string
}

func NewORSProvider(apiKey, baseURL string, timeout time.Duration) (*ORSProvider, error) {
	if apiKey == "" {
		return nil, errors.New("ORS api key is empty")
	}
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ORSProvider{
		session: &http.Client{Timeout: timeout},
		apiKey:  apiKey,
		baseURL: baseURL,
	}, nil
}

func (o *ORSProvider) Name() string { return orsName }

// orsProfile maps a travel mode to an ORS routing profile. Transit has no ORS profile.
func orsProfile(mode domain.TravelMode) (string, bool) {
	switch mode {
	case domain.TravelModeDriving, "":
		return "driving-car", true
	case domain.TravelModeWalking:
		return "foot-walking", true
	case domain.TravelModeBicycling:
		return "cycling-regular", true
	}
	return "", false
}

type directionsRequest struct {
	Coordinates  [][]float64 `json:"coordinates"`
	Instructions bool        `json:"instructions"`
	Units        string      `json:"units"`
}

type directionsResponse struct {
	Routes []struct {
		Summary struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		Geometry string `json:"geometry"`
		Segments []struct {
			Steps []struct {
				Instruction string `json:"instruction"`
			} `json:"steps"`
		} `json:"segments"`
	} `json:"routes"`
}

// Route fetches a single origin->destination route from /v2/directions/{profile}.
func (o *ORSProvider) Route(ctx context.Context, q ports.RouteQuery) (_ domain.CostEdge, err error) {
	defer obs.Time(ctx, "ors.Route")(&err)

	profile, ok := orsProfile(q.Mode)
	if !ok {
		return domain.CostEdge{}, &domain.ProviderError{
			Provider: orsName,
			Kind:     domain.ProviderPermanent,
			Err:      fmt.Errorf("%w: travel mode %q not supported", domain.ErrNoRoute, q.Mode),
		}
	}

	payload, err := json.Marshal(directionsRequest{
		Coordinates:  [][]float64{q.Origin.CoordsToList(), q.Destination.CoordsToList()},
		Instructions: true,
		Units:        "m",
	})
	if err != nil {
		return domain.CostEdge{}, fmt.Errorf("marshal directions request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s", o.baseURL, profile)
	req, err := o.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.CostEdge{}, err
	}

	resp, err := o.do(req)
	if err != nil {
		return domain.CostEdge{}, err
	}
	defer resp.Body.Close()

	var decoded directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.CostEdge{}, &domain.ProviderError{
			Provider: orsName,
			Kind:     domain.ProviderTransient,
			Err:      fmt.Errorf("decode directions response: %w", err),
		}
	}

	if len(decoded.Routes) == 0 {
		return domain.CostEdge{}, &domain.ProviderError{Provider: orsName, Kind: domain.ProviderPermanent, Err: domain.ErrNoRoute}
	}

	r := decoded.Routes[0]
	edge := domain.CostEdge{
		DistanceMeters:  int(math.Round(r.Summary.Distance)),
		DurationSeconds: int(math.Round(r.Summary.Duration)),
		Polyline:        r.Geometry,
	}
	for _, seg := range r.Segments {
		for _, st := range seg.Steps {
			if st.Instruction != "" {
				edge.Steps = append(edge.Steps, st.Instruction)
			}
		}
	}

	return edge, nil
}
