package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/crsongirkar/YT-Platform/internal/auth"
	"github.com/crsongirkar/YT-Platform/internal/logging"
)

// TokenAuthenticator resolves a bearer access token to an account identifier.
type TokenAuthenticator interface {
	Authenticate(accessToken string) (string, error)
}

// RequireAccount rejects requests without a valid bearer token and stores the authenticated
// account on the request context.
func RequireAccount(authenticator TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			accountID, err := authenticator.Authenticate(token)
			if err != nil {
				logging.FromContext(r.Context()).Info("rejected access token", "error", err)
				writeUnauthorized(w, "invalid or expired token")
				return
			}

			ctx := auth.WithAccountID(r.Context(), accountID)
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("account_id", accountID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
