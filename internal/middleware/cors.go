package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSOptions describes what browsers may send across origins. A single "*"
// origin reflects whatever Origin the browser sent.
type CORSOptions struct {
	AllowOrigins []string
	// AllowHeaders lists the request headers a caller may set. X-User-Id is
	// never one of them: the gateway derives it from the credential.
	AllowHeaders []string
	// ExposeHeaders lists response headers scripts may read.
	ExposeHeaders []string
	MaxAge        time.Duration
}

var corsMethods = []string{
	http.MethodGet, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

type corsPolicy struct {
	allowAll bool
	origins  map[string]struct{}
	methods  string
	headers  string
	expose   string
	maxAge   string
}

func newCORSPolicy(opts CORSOptions) *corsPolicy {
	p := &corsPolicy{
		origins: make(map[string]struct{}, len(opts.AllowOrigins)),
		methods: strings.Join(corsMethods, ","),
	}
	for _, o := range opts.AllowOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			p.allowAll = true
			continue
		}
		p.origins[o] = struct{}{}
	}

	headers := make([]string, 0, len(opts.AllowHeaders))
	for _, h := range opts.AllowHeaders {
		h = http.CanonicalHeaderKey(strings.TrimSpace(h))
		if h == "" || h == HeaderUserID {
			continue
		}
		headers = append(headers, h)
	}
	p.headers = strings.Join(headers, ", ")
	p.expose = strings.Join(opts.ExposeHeaders, ", ")
	if opts.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(opts.MaxAge.Seconds()))
	}
	return p
}

func (p *corsPolicy) allowed(origin string) bool {
	if p.allowAll {
		return true
	}
	_, ok := p.origins[strings.ToLower(strings.TrimSpace(origin))]
	return ok
}

func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	p := newCORSPolicy(opts)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			ok := origin != "" && p.allowed(origin)
			if origin != "" {
				w.Header().Add("Vary", "Origin")
			}
			if ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			}

			// Preflight never reaches a backend and never needs a credential.
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if ok {
					w.Header().Set("Access-Control-Allow-Methods", p.methods)
					if p.headers != "" {
						w.Header().Set("Access-Control-Allow-Headers", p.headers)
					}
					if p.maxAge != "" {
						w.Header().Set("Access-Control-Max-Age", p.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if ok && p.expose != "" {
				w.Header().Set("Access-Control-Expose-Headers", p.expose)
			}
			next.ServeHTTP(w, r)
		})
	}
}
