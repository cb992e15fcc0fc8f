package server

import (
	"context"
	"net/http"
	"time"

	"github.com/aristath/holdings/internal/api"
)

// handleHealth reports whether both databases answer
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	databases := make(map[string]string)
	for name, db := range s.container.Databases() {
		if err := db.Conn().PingContext(ctx); err != nil {
			s.log.Warn().Err(err).Str("database", name).Msg("Health check ping failed")
			databases[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		databases[name] = "ok"
	}

	health := "healthy"
	if status != http.StatusOK {
		health = "unhealthy"
	}

	api.WriteJSON(w, status, map[string]interface{}{
		"status":    health,
		"service":   "holdings",
		"databases": databases,
	}, s.log)
}
