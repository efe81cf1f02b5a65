package auth

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ingeweb/contactws/internal/config"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

// contextKey keeps values set here out of reach of other packages.
type contextKey string

const userIDKey contextKey = "userID"

// RequireAuth rejects requests without a valid session cookie with 401 and
// stores the account id in the request context otherwise.
func RequireAuth(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := extractUserID(r, tokens)
			if err != nil {
				writeDenied(w, http.StatusUnauthorized, "unauthorized", "valid authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireSiteAdmin must run after RequireAuth. It lets through only the
// accounts listed as site administrators in the policy.
func RequireSiteAdmin(policy config.Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := AccountIDFromContext(r.Context())
			if !ok || !policy.IsSiteAdmin(id) {
				writeDenied(w, http.StatusForbidden, "forbidden", "site administrator required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserIDFromContext returns the token subject set by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// AccountIDFromContext is UserIDFromContext parsed as a local account id.
func AccountIDFromContext(ctx context.Context) (int64, bool) {
	s, ok := UserIDFromContext(ctx)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// WithUserID returns ctx carrying userID the way RequireAuth stores it.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

func extractUserID(r *http.Request, tokens *TokenService) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", err
	}
	return tokens.Validate(cookie.Value)
}

func writeDenied(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + code + `","message":"` + message + `"}`))
}
