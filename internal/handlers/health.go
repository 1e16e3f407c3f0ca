package handlers

import (
	"net/http"
	"time"

	"github.com/lehigh-university-libraries/laundry-sorter/internal/classifier"
)

type serviceStatus struct {
	Service string `json:"service"`
	Name    string `json:"name"`
	URL     string `json:"url,omitempty"`
	Healthy bool   `json:"healthy"`
}

// HandleHealth probes the three classifiers. The index page calls it after
// loading so a slow or offline service never delays the page itself.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != "GET" {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.health == nil {
		h.writeError(w, "Health checks not configured", http.StatusServiceUnavailable)
		return
	}

	status := h.health.CheckHealth(r.Context())
	services := make([]serviceStatus, 0, len(classifier.Services))
	for _, s := range classifier.Services {
		services = append(services, serviceStatus{
			Service: string(s),
			Name:    s.DisplayName(),
			URL:     h.baseURLs[s],
			Healthy: status[s],
		})
	}

	h.writeJSON(w, map[string]any{
		"services":   services,
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	})
}
