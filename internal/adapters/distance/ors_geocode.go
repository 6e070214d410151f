package distance

import (
	"context"
	"encoding/json"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/platform/obs"
	"errand-route-service/internal/ports"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

type geocodeResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"`
		} `json:"geometry"`
		Properties struct {
			ID    string `json:"id"`
			Name  string `json:"name"`
			Label string `json:"label"`
		} `json:"properties"`
	} `json:"features"`
}

// Search resolves keywords to places using OpenRouteService (/geocode/search),
// optionally focused on and bounded around q.Near.
func (o *ORSProvider) Search(ctx context.Context, q ports.SearchQuery) (_ []ports.Place, err error) {
	defer obs.Time(ctx, "ors.Search")(&err)

	text := strings.Join(strings.Fields(q.Keywords), " ")
	if text == "" {
		return nil, nil
	}

	req, err := o.newRequest(ctx, http.MethodGet, o.baseURL+"/geocode/search", nil)
	if err != nil {
		return nil, err
	}

	v := req.URL.Query()
	v.Set("text", text)
	if q.Limit > 0 {
		v.Set("size", strconv.Itoa(q.Limit))
	}
	if q.Region != "" {
		v.Set("boundary.country", strings.ToUpper(q.Region))
	}
	if q.Near != nil {
		lat := strconv.FormatFloat(q.Near.Lat, 'f', 6, 64)
		lon := strconv.FormatFloat(q.Near.Lon, 'f', 6, 64)
		v.Set("focus.point.lat", lat)
		v.Set("focus.point.lon", lon)
		if q.RadiusMeters > 0 {
			v.Set("boundary.circle.lat", lat)
			v.Set("boundary.circle.lon", lon)
			v.Set("boundary.circle.radius", strconv.FormatFloat(float64(q.RadiusMeters)/1000, 'f', 3, 64))
		}
	}
	req.URL.RawQuery = v.Encode()

	resp, err := o.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var decoded geocodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, &domain.ProviderError{
			Provider: orsName,
			Kind:     domain.ProviderTransient,
			Err:      fmt.Errorf("decode geocode response: %w", err),
		}
	}

	out := make([]ports.Place, 0, len(decoded.Features))
	for _, f := range decoded.Features {
		coords := f.Geometry.Coordinates
		if len(coords) != 2 {
			continue
		}

		out = append(out, ports.Place{
			ID:          f.Properties.ID,
			Name:        f.Properties.Name,
			Address:     f.Properties.Label,
			Coordinates: domain.Coordinates{Lon: coords[0], Lat: coords[1]},
		})
	}

	return out, nil
}
