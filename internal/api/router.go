package api

import (
	"errand-route-service/internal/api/handlers"
	"errand-route-service/internal/domain"
	"net/http"
	"time"
)

type RouterOptions struct {
	DefaultMode domain.TravelMode
	MaxBudget   time.Duration
}

// Service is everything the HTTP layer needs from the planner.
type Service interface {
	handlers.Planner
	handlers.CacheAdmin
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
func NewRouter(svc Service, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	planHandler := &handlers.PlanHandler{
		Planner:     svc,
		DefaultMode: opts.DefaultMode,
		MaxBudget:   opts.MaxBudget,
	}
	cacheHandler := &handlers.CacheHandler{Cache: svc}

	mux.HandleFunc("/health", handlers.Health)
	mux.HandleFunc("/plans/fixed", planHandler.Fixed)
	mux.HandleFunc("/plans/categories", planHandler.Categories)
	mux.HandleFunc("/cache/stats", cacheHandler.Stats)
	mux.HandleFunc("/cache/purge", cacheHandler.Purge)
	mux.HandleFunc("/cache", cacheHandler.Clear)

	// The request id must be in the context before the access log reads it.
	return requestIDMiddleware(loggingMiddleware(mux))
}
