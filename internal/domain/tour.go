package domain

import "time"

// Criterion is the quantity a tour is ranked by.
type Criterion string

const (
	CriterionTime     Criterion = "time"
	CriterionDistance Criterion = "distance"
)

// Algorithm names a tour construction strategy.
type Algorithm string

const (
	AlgorithmAuto      Algorithm = "auto"
	AlgorithmExact     Algorithm = "exact"
	AlgorithmHeuristic Algorithm = "nearest_neighbor_2opt"
	AlgorithmGenetic   Algorithm = "genetic"
	AlgorithmSolver    Algorithm = "solver"
	// AlgorithmNone marks degraded routes that were concatenated without optimization.
	AlgorithmNone Algorithm = "none"
)

// CategorySelection maps each category name to the branch chosen for a tour.
type CategorySelection map[string]Point

// Represents one ranked visiting order.
// A TourCandidate always starts and ends at the home point, visits every other
// point exactly once, and is immutable planning data once ranked.
type TourCandidate struct {
	Route []Point
	// Segments[i] is the edge from Route[i] to Route[i+1].
	Segments []CostEdge
	// VisitOrder holds the point positions of the destinations, home excluded.
	VisitOrder           []int
	TotalDistanceMeters  int
	TotalTravelSeconds   int
	TotalDwellSeconds    int
	TotalDurationSeconds int
	Rank                 int
	Criterion            Criterion
	Algorithm            Algorithm
	UsesFallbackEdges    bool

	// Schedule[i] is when the tour reaches and leaves Route[i].
	Schedule []StopTime

	Selection     CategorySelection
	CombinationID string
	// IsFallbackRoute marks unoptimized routes returned when no valid tour exists.
	IsFallbackRoute bool
}

// Cost returns the candidate's total under criterion c.
func (t TourCandidate) Cost(c Criterion) int {
	if c == CriterionDistance {
		return t.TotalDistanceMeters
	}
	return t.TotalTravelSeconds
}

// StopTime places one route entry on the timeline. Offsets count seconds from
// leaving home; the absolute times are set only when a departure is known.
type StopTime struct {
	ArriveOffsetSeconds int
	LeaveOffsetSeconds  int
	ArriveAt            *time.Time
	LeaveAt             *time.Time
}

// WithDeparture returns a copy of t whose schedule carries wall-clock times
// counted from depart.
func (t TourCandidate) WithDeparture(depart time.Time) TourCandidate {
	schedule := make([]StopTime, len(t.Schedule))
	for i, st := range t.Schedule {
		arrive := depart.Add(time.Duration(st.ArriveOffsetSeconds) * time.Second)
		leave := depart.Add(time.Duration(st.LeaveOffsetSeconds) * time.Second)
		st.ArriveAt, st.LeaveAt = &arrive, &leave
		schedule[i] = st
	}
	t.Schedule = schedule
	return t
}
