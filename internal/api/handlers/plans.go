package handlers

import (
	"context"
	"errand-route-service/internal/api/dto"
	"errand-route-service/internal/domain"
	"errand-route-service/internal/services"
	"net/http"
	"strings"
	"time"
)

type Planner interface {
	OptimizeFixedDestinations(ctx context.Context, req services.FixedRequest) (*services.FixedResult, error)
	OptimizeWithCategories(ctx context.Context, req services.CategoryPlanRequest) (*services.CategoryPlan, error)
}

type PlanHandler struct {
	Planner     Planner
	DefaultMode domain.TravelMode
	// MaxBudget caps the optimizer budget a caller may ask for.
	MaxBudget time.Duration
}

// Fixed ranks visiting orders over caller-supplied coordinates.
func (h *PlanHandler) Fixed(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req dto.FixedPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	mode, ok := h.mode(w, r, req.Mode)
	if !ok {
		return
	}
	algo, err := services.ParseAlgorithm(req.Algorithm)
	if err != nil {
		writeServiceError(w, r, "plan fixed", err)
		return
	}

	dests := make([]domain.Point, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		dests = append(dests, toPoint(d))
	}

	res, err := h.Planner.OptimizeFixedDestinations(r.Context(), services.FixedRequest{
		Home:         toPoint(req.Home),
		Destinations: dests,
		Mode:         mode,
		Region:       strings.TrimSpace(req.Region),
		Algorithm:    algo,
		DepartAt:     req.DepartAt,
		Budget:       h.budget(req.BudgetSeconds),
	})
	if err != nil {
		writeServiceError(w, r, "plan fixed", err)
		return
	}

	writeJSON(w, r, http.StatusOK, dto.FixedPlanResponse{
		Algorithm:     string(res.Algorithm),
		FallbackEdges: res.FallbackEdges,
		ByTime:        toTours(res.ByTime),
		ByDistance:    toTours(res.ByDistance),
	})
}

// Categories resolves destination names and picks one branch per chain.
func (h *PlanHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	var req dto.CategoryPlanRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	mode, ok := h.mode(w, r, req.Mode)
	if !ok {
		return
	}

	stops := make([]services.NamedStop, 0, len(req.Destinations))
	for _, d := range req.Destinations {
		if d.DwellMinutes < 0 {
			writeError(w, r, http.StatusBadRequest, "dwell_minutes must not be negative")
			return
		}
		stops = append(stops, services.NamedStop{Name: d.Name, Dwell: time.Duration(d.DwellMinutes) * time.Minute})
	}

	plan, err := h.Planner.OptimizeWithCategories(r.Context(), services.CategoryPlanRequest{
		Home:     toPoint(req.Home),
		Stops:    stops,
		Mode:     mode,
		Region:   strings.TrimSpace(req.Region),
		DepartAt: req.DepartAt,
		Budget:   h.budget(req.BudgetSeconds),
	})
	if err != nil {
		writeServiceError(w, r, "plan categories", err)
		return
	}

	res := dto.CategoryPlanResponse{
		Private:    toPoints(plan.Resolution.Private),
		Categories: map[string][]dto.PointResponse{},
		Unresolved: plan.Resolution.Unresolved,
		Warning:    plan.Warning,
		ByTime:     []dto.TourResponse{},
		ByDistance: []dto.TourResponse{},
	}
	if res.Unresolved == nil {
		res.Unresolved = []string{}
	}
	for name, branches := range plan.Resolution.Categories {
		res.Categories[name] = toPoints(branches)
	}
	if plan.Result != nil {
		// Report the branches that were actually considered.
		for name, branches := range plan.Result.Categories {
			res.Categories[name] = toPoints(branches)
		}
		res.CombinationsEvaluated = plan.Result.CombinationsEvaluated
		res.FallbackEdges = plan.Result.FallbackEdges
		res.IsFallbackRoute = plan.Result.IsFallback
		res.ByTime = toTours(plan.Result.ByTime)
		res.ByDistance = toTours(plan.Result.ByDistance)
	}

	writeJSON(w, r, http.StatusOK, res)
}

func (h *PlanHandler) mode(w http.ResponseWriter, r *http.Request, s string) (domain.TravelMode, bool) {
	if strings.TrimSpace(s) == "" {
		if h.DefaultMode != "" {
			return h.DefaultMode, true
		}
		return domain.TravelModeDriving, true
	}
	mode, err := domain.ParseTravelMode(s)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return "", false
	}
	return mode, true
}

func (h *PlanHandler) budget(seconds int) time.Duration {
	if seconds <= 0 {
		return 0
	}
	d := time.Duration(seconds) * time.Second
	if h.MaxBudget > 0 && d > h.MaxBudget {
		return h.MaxBudget
	}
	return d
}

func toPoint(p dto.PointRequest) domain.Point {
	return domain.Point{
		ID:           strings.TrimSpace(p.ID),
		Name:         strings.TrimSpace(p.Name),
		Address:      p.Address,
		Coordinates:  domain.Coordinates{Lat: p.Lat, Lon: p.Lon},
		DwellSeconds: p.DwellSeconds,
	}
}

func toPointResponse(p domain.Point) dto.PointResponse {
	return dto.PointResponse{
		ID:           p.ID,
		Name:         p.Name,
		Address:      p.Address,
		Lat:          p.Coordinates.Lat,
		Lon:          p.Coordinates.Lon,
		DwellSeconds: p.DwellSeconds,
		Category:     p.Category,
	}
}

func toPoints(pts []domain.Point) []dto.PointResponse {
	out := make([]dto.PointResponse, 0, len(pts))
	for _, p := range pts {
		out = append(out, toPointResponse(p))
	}
	return out
}

func toTours(cands []domain.TourCandidate) []dto.TourResponse {
	out := make([]dto.TourResponse, 0, len(cands))
	for _, c := range cands {
		t := dto.TourResponse{
			Rank:                 c.Rank,
			Criterion:            string(c.Criterion),
			Algorithm:            string(c.Algorithm),
			Route:                toPoints(c.Route),
			Segments:             make([]dto.SegmentResponse, 0, len(c.Segments)),
			Schedule:             make([]dto.StopTimeResponse, 0, len(c.Schedule)),
			TotalDistanceMeters:  c.TotalDistanceMeters,
			TotalTravelSeconds:   c.TotalTravelSeconds,
			TotalDwellSeconds:    c.TotalDwellSeconds,
			TotalDurationSeconds: c.TotalDurationSeconds,
			UsesFallbackEdges:    c.UsesFallbackEdges,
			IsFallbackRoute:      c.IsFallbackRoute,
			CombinationID:        c.CombinationID,
		}
		for i, s := range c.Segments {
			t.Segments = append(t.Segments, dto.SegmentResponse{
				From:            c.Route[i].Label(),
				To:              c.Route[i+1].Label(),
				DistanceMeters:  s.DistanceMeters,
				DurationSeconds: s.DurationSeconds,
				Polyline:        s.Polyline,
				Steps:           s.Steps,
				IsFallback:      s.IsFallback,
			})
		}
		for i, st := range c.Schedule {
			t.Schedule = append(t.Schedule, dto.StopTimeResponse{
				Name:                c.Route[i].Label(),
				ArriveOffsetSeconds: st.ArriveOffsetSeconds,
				LeaveOffsetSeconds:  st.LeaveOffsetSeconds,
				ArriveAt:            st.ArriveAt,
				LeaveAt:             st.LeaveAt,
			})
		}
		if len(c.Selection) > 0 {
			t.Selection = make(map[string]dto.PointResponse, len(c.Selection))
			for name, p := range c.Selection {
				t.Selection[name] = toPointResponse(p)
			}
		}
		out = append(out, t)
	}
	return out
}
