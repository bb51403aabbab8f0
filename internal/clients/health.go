package clients

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const probeTimeout = 2 * time.Second

type HealthProbe struct {
	Name   string
	Client *Client
	Path   string
}

type HealthResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	StatusCode int    `json:"statusCode,omitempty"`
	Error      string `json:"error,omitempty"`
}

func CheckHealth(ctx context.Context, probe HealthProbe) HealthResult {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	resp, err := probe.Client.Do(ctx, http.MethodGet, probe.Path, "", nil, http.Header{})
	if err != nil {
		return HealthResult{Name: probe.Name, OK: false, Error: err.Error()}
	}
	defer resp.Body.Close()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	return HealthResult{Name: probe.Name, OK: ok, StatusCode: resp.StatusCode}
}

// CheckAll probes every backend concurrently and returns results in probe order.
func CheckAll(ctx context.Context, probes []HealthProbe) []HealthResult {
	results := make([]HealthResult, len(probes))

	var wg sync.WaitGroup
	wg.Add(len(probes))
	for i := range probes {
		go func() {
			defer wg.Done()
			results[i] = CheckHealth(ctx, probes[i])
		}()
	}
	wg.Wait()
	return results
}
