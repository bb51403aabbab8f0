package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Mrprince0421/microsservi-os/internal/clients"
	"github.com/Mrprince0421/microsservi-os/internal/logging"
	"github.com/Mrprince0421/microsservi-os/internal/middleware"
)

const maxBodyBytes = 1 << 20

// Proxy forwards authenticated requests to one backend. It must be wrapped
// by middleware.Authenticate; a request without an identity is refused.
type Proxy struct {
	client  *clients.Client
	prefix  string
	timeout time.Duration
}

func NewProxy(c *clients.Client, prefix string, timeout time.Duration) *Proxy {
	return &Proxy{client: c, prefix: strings.TrimRight(prefix, "/"), timeout: timeout}
}

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		middleware.WriteError(w, r, http.StatusUnauthorized, "Not authenticated")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, p.prefix)
	if path == "" || path[0] != '/' {
		path = "/" + path
	}

	h := http.Header{}
	if accept := r.Header.Get("Accept"); accept != "" {
		h.Set("Accept", accept)
	}
	h.Set(middleware.HeaderUserID, strconv.FormatInt(id.SubjectID, 10))
	h.Set(middleware.HeaderAuthorization, id.BearerHeader())

	var (
		rawQuery string
		body     io.Reader
	)
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		rawQuery = r.URL.RawQuery
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		b, err := compactBody(w, r)
		if err != nil {
			middleware.WriteError(w, r, http.StatusBadRequest, "request body must be valid JSON")
			return
		}
		if b != nil {
			body = bytes.NewReader(b)
			h.Set("Content-Type", "application/json")
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), p.timeout)
	defer cancel()

	resp, err := p.client.Do(ctx, r.Method, path, rawQuery, body, h)
	if err != nil {
		if !errors.Is(err, clients.ErrUnavailable) {
			logging.FromContext(r.Context()).Error("build upstream request", zap.Error(err))
			middleware.WriteError(w, r, http.StatusBadGateway, "invalid upstream request")
			return
		}
		logging.FromContext(r.Context()).Warn("upstream unavailable",
			zap.String("target", p.client.Name),
			zap.String("path", path),
			zap.Error(err),
		)
		middleware.WriteError(w, r, http.StatusServiceUnavailable, "Service unavailable: "+p.client.BaseURL.String())
		return
	}
	defer resp.Body.Close()

	CopyUpstreamResponse(w, resp)
}

// compactBody re-serializes the JSON body without changing field order or
// values. An empty body yields nil.
func compactBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CopyUpstreamResponse relays status, headers and body unchanged, minus
// connection-scoped headers and the ones this gateway sets itself.
func CopyUpstreamResponse(w http.ResponseWriter, resp *http.Response) {
	for k, vv := range resp.Header {
		if skipResponseHeader(k) {
			continue
		}
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = io.Copy(w, resp.Body)
}

func skipResponseHeader(k string) bool {
	if clients.IsHopByHopHeader(k) {
		return true
	}
	k = http.CanonicalHeaderKey(k)
	return k == middleware.HeaderCorrelationID || strings.HasPrefix(k, "Access-Control-")
}
