package handlers

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/crsongirkar/YT-Platform/internal/auth"
)

// RateLimiter is the minimal interface required to guard sensitive endpoints.
type RateLimiter interface {
	Allow(ctx context.Context, key string) bool
}

func allowRequest(limiter RateLimiter, r *http.Request, scope string) bool {
	if limiter == nil {
		return true
	}
	return limiter.Allow(r.Context(), rateLimitKey(r, scope))
}

// rateLimitKey prefers the authenticated account so clients behind one NAT do not share a
// budget, falling back to the client address.
func rateLimitKey(r *http.Request, scope string) string {
	subject := clientIP(r)
	if accountID, ok := auth.AccountIDFromContext(r.Context()); ok {
		subject = "account:" + accountID
	}
	if scope == "" {
		return subject
	}
	return fmt.Sprintf("%s:%s", scope, subject)
}

func clientIP(r *http.Request) string {
	if forwarded := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
