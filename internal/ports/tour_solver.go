package ports

import (
	"context"
	"errand-route-service/internal/domain"
	"time"
)

// Capability: a general-purpose solver for a single vehicle that starts and
// ends at node 0 and minimizes total duration.
type TourSolver interface {
	// SolveTour returns a closed tour [0, ..., 0] over every matrix node, or an
	// error wrapping domain.ErrSolverUnavailable when it cannot serve the request.
	SolveTour(ctx context.Context, m *domain.CostMatrix, budget time.Duration) ([]int, error)
}
