package util

import (
	"net/http"
	"strings"
)

const (
	apiCSP       = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'"
	printableCSP = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'; base-uri 'none'"
)

// WithSecurityHeaders adds security response headers. Responses whose
// Content-Type is HTML get a policy that still allows their inline styles.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "geolocation=(), camera=(), microphone=()")

		// HSTS only over HTTPS, direct or forwarded.
		if r.TLS != nil || strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
			h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		cw := &cspWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)
		if !cw.wrote {
			h.Set("Content-Security-Policy", apiCSP)
		}
	})
}

// cspWriter picks the Content-Security-Policy once the handler has chosen
// a content type.
type cspWriter struct {
	http.ResponseWriter
	wrote bool
}

func (c *cspWriter) WriteHeader(statusCode int) {
	if !c.wrote {
		c.wrote = true
		policy := apiCSP
		if strings.HasPrefix(c.Header().Get("Content-Type"), "text/html") {
			policy = printableCSP
		}
		c.Header().Set("Content-Security-Policy", policy)
	}
	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *cspWriter) Write(b []byte) (int, error) {
	if !c.wrote {
		c.WriteHeader(http.StatusOK)
	}
	return c.ResponseWriter.Write(b)
}
