package rest

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pixelbridge/conversion-bridge/internal/domain"
	"github.com/pixelbridge/conversion-bridge/internal/security"
)

// OperatorAuth protects the setup and stats surface. Ingestion routes are
// authenticated by the credential token instead, never by this middleware.
func OperatorAuth(verifier security.OperatorVerifier) func(next http.Handler) http.Handler {
	if verifier == nil {
		panic("OperatorAuth: nil verifier")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := strings.TrimSpace(r.Header.Get("Authorization"))
			if h == "" {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			parts := strings.SplitN(h, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			raw := strings.TrimSpace(parts[1])
			if raw == "" {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			claims, err := verifier.VerifyOperatorToken(raw)
			if err != nil {
				// expired vs invalid stays indistinguishable to the caller
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			if strings.TrimSpace(claims.OperatorID) == "" {
				fail(w, r, http.StatusUnauthorized, "auth.unauthorized", "unauthorized", nil)
				return
			}

			ctx := withOperator(r.Context(), OperatorContext{
				OperatorID: claims.OperatorID,
				Role:       claims.Role,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type RateLimitOptions struct {
	Enabled bool
	Limit   int
	Window  time.Duration
}

func RateLimit(cache domain.CacheRepository, opt RateLimitOptions) func(next http.Handler) http.Handler {
	if opt.Limit <= 0 {
		opt.Limit = 100
	}
	if opt.Window <= 0 {
		opt.Window = time.Minute
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !opt.Enabled {
				next.ServeHTTP(w, r)
				return
			}
			ip := clientIP(r)
			allowed, _ := cache.AllowRequest(r.Context(), ip, opt.Limit, opt.Window)
			if !allowed {
				fail(w, r, http.StatusTooManyRequests, "rate.limited", "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the original client address. The service always sits
// behind a reverse proxy in production, so X-Forwarded-For is trusted; the
// address also feeds the outbound record's match fields, where a proxy IP
// would hurt match quality.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); rip != "" {
		return rip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Restrictive CSP; the only non-JSON response is the tracker script,
		// which is fetched as a script resource and unaffected.
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'")
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=(), bluetooth=()")

		next.ServeHTTP(w, r)
	})
}
