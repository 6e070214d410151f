package handlers

import (
	"errand-route-service/internal/api/dto"
	"errand-route-service/internal/domain"
	"log"
	"net/http"
)

type CacheAdmin interface {
	CacheStats() domain.CacheStats
	CacheClearExpired() int
	CacheClearAll() int
}

// CacheHandler exposes distance cache introspection and maintenance.
type CacheHandler struct {
	Cache CacheAdmin
}

func (h *CacheHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	st := h.Cache.CacheStats()
	writeJSON(w, r, http.StatusOK, dto.CacheStatsResponse{
		Entries: st.Entries,
		Hits:    st.Hits,
		Misses:  st.Misses,
		HitRate: st.HitRate,
	})
}

func (h *CacheHandler) Purge(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}

	n := h.Cache.CacheClearExpired()
	log.Printf("op=cache.purge removed=%d", n)
	writeJSON(w, r, http.StatusOK, dto.CacheRemovedResponse{Removed: n})
}

func (h *CacheHandler) Clear(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodDelete) {
		return
	}

	n := h.Cache.CacheClearAll()
	log.Printf("op=cache.clear removed=%d", n)
	writeJSON(w, r, http.StatusOK, dto.CacheRemovedResponse{Removed: n})
}
