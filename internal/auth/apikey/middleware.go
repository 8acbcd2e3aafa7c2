package apikey

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// KeyValidator resolves a raw key.
type KeyValidator interface {
	Validate(ctx context.Context, rawKey string) (*KeyInfo, error)
}

type keyInfoKey struct{}

// Require rejects requests whose key is missing, invalid, expired or lacks
// scope. Keys are read from "Authorization: Bearer" or X-API-Key.
func Require(v KeyValidator, scope string) func(http.Handler) http.Handler {
	logger := slog.Default().With("component", "apikey-auth")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				writeError(w, http.StatusUnauthorized, "missing api key")
				return
			}
			info, err := v.Validate(r.Context(), key)
			switch {
			case errors.Is(err, ErrInvalidKey):
				writeError(w, http.StatusUnauthorized, "invalid api key")
				return
			case errors.Is(err, ErrExpiredKey):
				writeError(w, http.StatusUnauthorized, "expired api key")
				return
			case err != nil:
				logger.Error("api key validation failed", "error", err)
				writeError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}
			if !info.Allows(scope) {
				writeError(w, http.StatusForbidden, ErrForbidden.Error())
				return
			}
			ctx := context.WithValue(r.Context(), keyInfoKey{}, info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireFunc is Require for a single handler func.
func RequireFunc(v KeyValidator, scope string, fn http.HandlerFunc) http.Handler {
	return Require(v, scope)(fn)
}

// FromContext returns the key Require accepted, or nil.
func FromContext(ctx context.Context) *KeyInfo {
	info, _ := ctx.Value(keyInfoKey{}).(*KeyInfo)
	return info
}

func extractAPIKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return r.Header.Get("X-API-Key")
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
