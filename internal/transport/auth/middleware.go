package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"dhronas-fees/internal/domain"
)

type ctxKey string

const identityKey ctxKey = "identity"

type AccountLoader interface {
	GetByID(ctx context.Context, studentID string) (*domain.Student, error)
}

// Authenticate verifies the bearer token (or ?token= for websocket clients),
// re-loads the account and stores its domain.Identity in the context.
func Authenticate(tokens *TokenManager, accounts AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				raw = r.URL.Query().Get("token")
			}
			if raw == "" {
				deny(w, http.StatusUnauthorized, "unauthorized", "Access denied")
				return
			}

			claims, err := tokens.Parse(raw)
			if err != nil {
				deny(w, http.StatusUnauthorized, "unauthorized", "Invalid token")
				return
			}

			account, err := accounts.GetByID(r.Context(), claims.Subject)
			if errors.Is(err, domain.ErrNotFound) {
				deny(w, http.StatusUnauthorized, "unauthorized", "User not found")
				return
			}
			if err != nil {
				log.Printf("[AUTH] load account %s: %v", claims.Subject, err)
				deny(w, http.StatusInternalServerError, "internal_error", "Internal Server Error")
				return
			}

			who := domain.NewIdentity(account.StudentID, account.Role)
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), who)))
		})
	}
}

// RequireRole rejects callers whose stored role is not one of roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := GetIdentity(r.Context())
			if err != nil {
				deny(w, http.StatusUnauthorized, "unauthorized", "Access denied")
				return
			}
			for _, role := range roles {
				if who.Role() == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			deny(w, http.StatusForbidden, "forbidden", "Access denied")
		})
	}
}

func RequireAdmin() func(http.Handler) http.Handler {
	return RequireRole(domain.RoleAdmin)
}

func WithIdentity(ctx context.Context, who domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, who)
}

func GetIdentity(ctx context.Context) (domain.Identity, error) {
	who, ok := ctx.Value(identityKey).(domain.Identity)
	if !ok || who.IsZero() {
		return domain.Identity{}, errors.New("identity not found in context")
	}
	return who, nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// deny writes the same envelope as the REST layer without importing it.
func deny(w http.ResponseWriter, status int, reason, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":     "error",
		"error_code": status,
		"reason":     reason,
		"message":    message,
		"data":       nil,
	})
}
