package handler

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Success   bool              `json:"success"`
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// ServeHTTP answers 200 when every dependency is healthy and 503 otherwise.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res := s.Run(r.Context())
	body := healthResponse{
		Success:   res.Healthy,
		Status:    "ok",
		Checks:    res.Checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if !res.Healthy {
		body.Status = "degraded"
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
