package proxy

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSOptions configures the gateway-side CORS handling. Preflight
// requests of allow-listed origins are answered directly, without
// touching the upstream.
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAgeSeconds    int
}

func (o *CORSOptions) enabled() bool {
	return len(o.AllowedOrigins) > 0
}

func (o *CORSOptions) allowed(origin string) bool {
	if origin == "" {
		return false
	}

	for _, a := range o.AllowedOrigins {
		if a == "*" || a == origin {
			return true
		}
	}

	return false
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

// servePreflight answers the preflight with 204. Origins outside the
// allow-list receive no Access-Control headers, the browser blocks the
// actual request.
func (o *CORSOptions) servePreflight(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if o.allowed(origin) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")

		if len(o.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(o.AllowedMethods, ", "))
		}

		if len(o.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(o.AllowedHeaders, ", "))
		}

		if o.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if o.MaxAgeSeconds > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(o.MaxAgeSeconds))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// applyResponseHeaders sets the CORS headers on actual responses for
// allow-listed origins.
func (o *CORSOptions) applyResponseHeaders(h http.Header, r *http.Request) {
	origin := r.Header.Get("Origin")
	if !o.allowed(origin) {
		return
	}

	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")

	if len(o.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(o.ExposedHeaders, ", "))
	}

	if o.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
}
