package classifier

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CheckHealth probes GET {base}/health on every service. A service is
// healthy only if it answers 200 before the health timeout; each probe is
// independent of the others.
func (g *Gateway) CheckHealth(ctx context.Context) map[Service]bool {
	status := make(map[Service]bool, len(Services))
	var mu sync.Mutex

	var eg errgroup.Group
	for _, service := range Services {
		eg.Go(func() error {
			healthy := g.probe(ctx, service)
			mu.Lock()
			status[service] = healthy
			mu.Unlock()
			if g.observer != nil {
				g.observer.ObserveHealth(service, healthy)
			}
			return nil
		})
	}
	_ = eg.Wait()

	return status
}

func (g *Gateway) probe(ctx context.Context, service Service) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURLs[service]+"/health", nil)
	if err != nil {
		slog.Warn("Unable to build health request", "service", service, "err", err)
		return false
	}

	resp, err := g.healthClient.Do(req)
	if err != nil {
		slog.Debug("Health check failed", "service", service, "err", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}
