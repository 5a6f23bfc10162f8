package gateway

import (
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cutty/cutty/core/infra/logging"
	"github.com/cutty/cutty/core/infra/ratelimit"
	"github.com/cutty/cutty/core/security/events"
	"github.com/cutty/cutty/core/security/identity"
	"github.com/cutty/cutty/core/security/pipeline"
	"github.com/cutty/cutty/core/security/policy"
)

// securityHeaders applies the headers section of the active policy. When no
// policy can be obtained the environment default is used.
func (s *server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.policies.Headers(r.Context())
		if err != nil {
			cfg = s.policies.DefaultPolicy().Headers
		}
		h := w.Header()
		setHeader(h, "Content-Security-Policy", cfg.ContentSecurityPolicy)
		if r.TLS != nil || s.env == policy.EnvProduction {
			setHeader(h, "Strict-Transport-Security", cfg.StrictTransportSecurity)
		}
		setHeader(h, "X-Frame-Options", cfg.XFrameOptions)
		setHeader(h, "X-Content-Type-Options", cfg.XContentTypeOptions)
		setHeader(h, "Referrer-Policy", cfg.ReferrerPolicy)
		setHeader(h, "Permissions-Policy", cfg.PermissionsPolicy)
		next.ServeHTTP(w, r)
	})
}

func setHeader(h http.Header, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		h.Set(key, value)
	}
}

// cors admits cross-origin callers listed in auth.allowedOrigins. Requests
// without an Origin header pass untouched.
func (s *server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin != "" {
			if !s.isAllowedOrigin(r) {
				writeError(w, http.StatusForbidden, "Origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-File-Name")
		w.Header().Set("Access-Control-Expose-Headers", "ETag, RateLimit-Limit, RateLimit-Remaining, RateLimit-Reset, Retry-After")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// isAllowedOrigin checks the Origin header against the policy allow-list.
// With an empty list only same-host and loopback origins are accepted. A
// policy that cannot be loaded admits no cross-origin caller.
func (s *server) isAllowedOrigin(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	auth, err := s.policies.Auth(r.Context())
	if err != nil {
		logging.Warn(component, "cors policy unavailable", "error", err)
		return false
	}
	for _, allowed := range auth.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "*" || strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	if len(auth.AllowedOrigins) > 0 {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	host := strings.ToLower(u.Hostname())
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	reqHost := strings.ToLower(requestHostname(r.Host))
	return reqHost != "" && host == reqHost
}

func requestHostname(hostport string) string {
	hostport = strings.TrimSpace(hostport)
	if hostport == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(hostport); err == nil && host != "" {
		return host
	}
	return hostport
}

// identify attaches the caller identity to every API request. Invalid
// credentials downgrade the caller to anonymous.
func (s *server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		_, r = s.pipeline.Identify(r)
		next.ServeHTTP(w, r)
	})
}

// rateLimit enforces the rateLimit section of the active policy per caller
// on API routes.
func (s *server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || !strings.HasPrefix(r.URL.Path, "/api/") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		cfg, err := s.policies.RateLimit(r.Context())
		if err != nil {
			s.writePolicyError(w, err)
			return
		}
		if !cfg.Enabled {
			next.ServeHTTP(w, r)
			return
		}

		id := caller(r)
		key := rateLimitKeyPrefix + rateLimitSubject(r, id)
		decision, err := ratelimit.Allow(r.Context(), s.limiter, key, int64(cfg.MaxRequests), cfg.Window())
		if err != nil {
			logging.Warn(component, "rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		ratelimit.WriteHeaders(w.Header(), decision, ratelimit.HeaderStyle{
			Standard: cfg.StandardHeaders,
			Legacy:   cfg.LegacyHeaders,
		}, s.now())

		if !decision.Allowed {
			s.security.IncRateLimited(r.URL.Path)
			if err := s.events.Log(r.Context(), events.SecurityEvent{
				Type:      events.TypeRateLimitExceeded,
				Severity:  events.SeverityMedium,
				UserID:    id.UserID,
				IPAddress: pipeline.ClientIP(r),
				UserAgent: r.UserAgent(),
				Message:   "Rate limit exceeded",
				Details: map[string]any{
					"path":     r.URL.Path,
					"method":   r.Method,
					"limit":    decision.Limit,
					"windowMs": cfg.WindowMs,
				},
				ActionTaken: "request_throttled",
			}); err != nil {
				logging.Warn(component, "security event not recorded", "type", events.TypeRateLimitExceeded, "error", err)
			}
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":      "Too many requests",
				"retryAfter": retryAfterSeconds(w.Header()),
			})
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		failed := rec.status >= http.StatusBadRequest
		if (failed && cfg.SkipFailedRequests) || (!failed && cfg.SkipSuccessfulRequests) {
			if err := s.limiter.Release(r.Context(), key, 1); err != nil {
				logging.Warn(component, "rate limit release failed", "error", err)
			}
		}
	})
}

func rateLimitSubject(r *http.Request, id identity.Identity) string {
	if id.Anonymous {
		return "ip:" + pipeline.ClientIP(r)
	}
	return "user:" + id.UserID
}

func retryAfterSeconds(h http.Header) int {
	n, _ := strconv.Atoi(h.Get("Retry-After"))
	return n
}
