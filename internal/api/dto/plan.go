package dto

import "time"

type PointRequest struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	DwellSeconds int     `json:"dwell_seconds"`
}

type FixedPlanRequest struct {
	Home          PointRequest   `json:"home"`
	Destinations  []PointRequest `json:"destinations"`
	Mode          string         `json:"mode"`
	Region        string         `json:"region"`
	Algorithm     string         `json:"algorithm"`
	DepartAt      *time.Time     `json:"depart_at"`
	BudgetSeconds int            `json:"budget_seconds"`
}

type NamedStopRequest struct {
	Name string `json:"name"`
	// Zero or missing uses the service default.
	DwellMinutes int `json:"dwell_minutes"`
}

type CategoryPlanRequest struct {
	Home          PointRequest       `json:"home"`
	Destinations  []NamedStopRequest `json:"destinations"`
	Mode          string             `json:"mode"`
	Region        string             `json:"region"`
	DepartAt      *time.Time         `json:"depart_at"`
	BudgetSeconds int                `json:"budget_seconds"`
}

type PointResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Address      string  `json:"address,omitempty"`
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	DwellSeconds int     `json:"dwell_seconds"`
	Category     string  `json:"category,omitempty"`
}

type SegmentResponse struct {
	From            string   `json:"from"`
	To              string   `json:"to"`
	DistanceMeters  int      `json:"distance_meters"`
	DurationSeconds int      `json:"duration_seconds"`
	Polyline        string   `json:"polyline,omitempty"`
	Steps           []string `json:"steps,omitempty"`
	IsFallback      bool     `json:"is_fallback"`
}

// StopTimeResponse is the arrival and departure at one route entry.
type StopTimeResponse struct {
	Name                string     `json:"name"`
	ArriveOffsetSeconds int        `json:"arrive_offset_seconds"`
	LeaveOffsetSeconds  int        `json:"leave_offset_seconds"`
	ArriveAt            *time.Time `json:"arrive_at,omitempty"`
	LeaveAt             *time.Time `json:"leave_at,omitempty"`
}

type TourResponse struct {
	Rank                 int                      `json:"rank"`
	Criterion            string                   `json:"criterion"`
	Algorithm            string                   `json:"algorithm"`
	Route                []PointResponse          `json:"route"`
	Segments             []SegmentResponse        `json:"segments"`
	Schedule             []StopTimeResponse       `json:"schedule"`
	TotalDistanceMeters  int                      `json:"total_distance_meters"`
	TotalTravelSeconds   int                      `json:"total_travel_seconds"`
	TotalDwellSeconds    int                      `json:"total_dwell_seconds"`
	TotalDurationSeconds int                      `json:"total_duration_seconds"`
	UsesFallbackEdges    bool                     `json:"uses_fallback_edges"`
	IsFallbackRoute      bool                     `json:"is_fallback_route,omitempty"`
	CombinationID        string                   `json:"combination_id,omitempty"`
	Selection            map[string]PointResponse `json:"selection,omitempty"`
}

type FixedPlanResponse struct {
	Algorithm     string         `json:"algorithm"`
	FallbackEdges int            `json:"fallback_edges"`
	ByTime        []TourResponse `json:"by_time"`
	ByDistance    []TourResponse `json:"by_distance"`
}

type CategoryPlanResponse struct {
	Private               []PointResponse            `json:"private"`
	Categories            map[string][]PointResponse `json:"categories"`
	Unresolved            []string                   `json:"unresolved"`
	CombinationsEvaluated int                        `json:"combinations_evaluated"`
	FallbackEdges         int                        `json:"fallback_edges"`
	IsFallbackRoute       bool                       `json:"is_fallback_route"`
	Warning               string                     `json:"warning,omitempty"`
	ByTime                []TourResponse             `json:"by_time"`
	ByDistance            []TourResponse             `json:"by_distance"`
}
