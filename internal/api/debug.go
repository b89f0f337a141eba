package api

import (
	"encoding/json"
	"net/http"
	"time"

	"pdroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
	info := map[string]any{
		"build": buildinfo.Info(),
		"time":  time.Now().UTC().Format(time.RFC3339),
		"config": map[string]any{
			"listen":         s.Cfg.Listen,
			"solveBudgetMs":  s.Cfg.SolveBudgetMs,
			"rateLimitRps":   s.Cfg.RateLimitRPS,
			"rateLimitBurst": s.Cfg.RateLimitBurst,
			"costFactors":    s.Cfg.CostFactors,
			"hasDatabaseUrl": s.Cfg.DatabaseURL != "",
			"hasRedisUrl":    s.Cfg.RedisURL != "",
		},
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}
