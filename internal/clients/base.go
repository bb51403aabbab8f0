package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mrprince0421/microsservi-os/internal/metrics"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
	"github.com/Mrprince0421/microsservi-os/internal/telemetry"
)

// Client performs single-shot calls against one backend service. It never
// retries; the caller decides what a failure means.
type Client struct {
	Name    string
	BaseURL *url.URL
	HTTP    *http.Client
	Metrics *metrics.Metrics
}

func NewClient(name string, baseURL string, httpClient *http.Client) *Client {
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Fail fast: config error
		panic(fmt.Sprintf("invalid %s base url %q: %v", name, baseURL, err))
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{Name: name, BaseURL: u, HTTP: httpClient}
}

// URL joins path and rawQuery onto the base URL, keeping any base path.
func (c *Client) URL(path, rawQuery string) string {
	u := *c.BaseURL
	u.Path = strings.TrimRight(c.BaseURL.Path, "/") + path
	u.RawPath = ""
	u.RawQuery = rawQuery
	return u.String()
}

// Do sends one request. Transport failures, including timeouts, are returned
// wrapping ErrUnavailable. Any HTTP response is returned as is.
func (c *Client) Do(ctx context.Context, method, path, rawQuery string, body io.Reader, inHeaders http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path, rawQuery), body)
	if err != nil {
		return nil, err
	}

	copyHeaders(req.Header, inHeaders)

	// Ensure correlation id propagated downstream
	if cid := middleware.GetCorrelationID(ctx); cid != "" {
		req.Header.Set(middleware.HeaderCorrelationID, cid)
	}
	telemetry.Inject(ctx, req.Header)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		c.observe("unavailable")
		return nil, fmt.Errorf("%s %w: %w", c.Name, ErrUnavailable, err)
	}
	c.observe(statusClass(resp.StatusCode))
	return resp, nil
}

func (c *Client) observe(outcome string) {
	if c.Metrics != nil {
		c.Metrics.Upstream.WithLabelValues(c.Name, outcome).Inc()
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if IsHopByHopHeader(k) {
			continue
		}
		if strings.EqualFold(k, "Host") || strings.EqualFold(k, "Content-Length") {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// IsHopByHopHeader reports the RFC 7230 connection-scoped headers.
func IsHopByHopHeader(k string) bool {
	switch http.CanonicalHeaderKey(k) {
	case "Connection", "Proxy-Connection", "Keep-Alive",
		"Proxy-Authenticate", "Proxy-Authorization",
		"Te", "Trailer", "Transfer-Encoding", "Upgrade":
		return true
	default:
		return false
	}
}
