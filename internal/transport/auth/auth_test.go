package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dhronas-fees/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

type accounts map[string]*domain.Student

func (a accounts) GetByID(ctx context.Context, id string) (*domain.Student, error) {
	if s, ok := a[id]; ok {
		return s, nil
	}
	return nil, domain.ErrStudentNotFound
}

var testAccounts = accounts{
	"STU-1":   {StudentID: "STU-1", Role: domain.RoleStudent},
	"ADMIN-1": {StudentID: "ADMIN-1", Role: domain.RoleAdmin},
}

func TestTokenManager_IssueAndParse(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)

	tok, expires, err := m.Issue("STU-1", domain.RoleStudent)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(expires) <= 59*time.Minute {
		t.Errorf("expected about an hour of validity, got %v", time.Until(expires))
	}

	claims, err := m.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "STU-1" || claims.Role != "student" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestTokenManager_RejectsBadTokens(t *testing.T) {
	m := NewTokenManager("secret", time.Hour)
	other := NewTokenManager("other-secret", time.Hour)
	expired := NewTokenManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	wrongSig, _, _ := other.Issue("STU-1", domain.RoleStudent)
	old, _, _ := expired.Issue("STU-1", domain.RoleStudent)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "STU-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, tok := range map[string]string{
		"garbage":         "not-a-token",
		"wrong signature": wrongSig,
		"expired":         old,
		"alg none":        none,
	} {
		if _, err := m.Parse(tok); err != ErrInvalidToken {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func protected(tokens *TokenManager, extra ...func(http.Handler) http.Handler) http.Handler {
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, err := GetIdentity(r.Context())
		if err != nil {
			w.WriteHeader(http.StatusTeapot)
			return
		}
		w.Write([]byte(who.StudentID() + ":" + string(who.Role())))
	})
	for i := len(extra) - 1; i >= 0; i-- {
		h = extra[i](h)
	}
	return Authenticate(tokens, testAccounts)(h)
}

func TestAuthenticate(t *testing.T) {
	tokens := NewTokenManager("secret", time.Hour)
	studentTok, _, _ := tokens.Issue("STU-1", domain.RoleStudent)
	// a forged admin role claim is ignored, storage wins
	forged, _, _ := tokens.Issue("STU-1", domain.RoleAdmin)
	ghost, _, _ := tokens.Issue("STU-404", domain.RoleStudent)

	cases := []struct {
		name   string
		header string
		query  string
		status int
		body   string
	}{
		{"no token", "", "", http.StatusUnauthorized, ""},
		{"bearer", "Bearer " + studentTok, "", http.StatusOK, "STU-1:student"},
		{"query param", "", studentTok, http.StatusOK, "STU-1:student"},
		{"forged role", "Bearer " + forged, "", http.StatusOK, "STU-1:student"},
		{"unknown account", "Bearer " + ghost, "", http.StatusUnauthorized, ""},
		{"bad token", "Bearer nope", "", http.StatusUnauthorized, ""},
	}

	h := protected(tokens)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			target := "/"
			if tc.query != "" {
				target += "?token=" + tc.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d (%s)", tc.status, rec.Code, rec.Body.String())
			}
			if tc.body != "" && rec.Body.String() != tc.body {
				t.Errorf("expected body %q, got %q", tc.body, rec.Body.String())
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	tokens := NewTokenManager("secret", time.Hour)
	h := protected(tokens, RequireAdmin())

	studentTok, _, _ := tokens.Issue("STU-1", domain.RoleStudent)
	adminTok, _, _ := tokens.Issue("ADMIN-1", domain.RoleAdmin)

	for tok, want := range map[string]int{studentTok: http.StatusForbidden, adminTok: http.StatusOK} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+tok)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("expected %d, got %d", want, rec.Code)
		}
	}
}
