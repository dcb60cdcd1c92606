package server

import (
	"net/http"
	"time"

	"github.com/OrlandoBitencourt/flagcache"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if !s.flags.IsReady() {
		status, code = "starting", http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]string{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleFlag(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	user, _ := UserFromContext(r.Context())

	result, err := s.flags.GetFlag(r.Context(), key, user)
	if err != nil {
		s.logger.Warn("flag lookup failed", zap.String("flag_key", key), zap.Error(err))
		status := http.StatusBadGateway
		if flagcache.IsCircuitOpen(err) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flags.Stats())
}

func (s *Server) handleFlags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.flags.GetMemoryFlags())
}

// handleRefresh re-fetches every flag; ?force=true empties the cache first
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	s.flags.Refresh(r.Context(), force)

	s.logger.Info("manual refresh", zap.Bool("force", force))
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"flags":  len(s.flags.GetMemoryFlags()),
	})
}
