package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

const testSecret = "test-secret"

func signToken(t *testing.T, sub string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := UserIDFromContext(r.Context())
		email, _ := r.Context().Value(EmailContextKey).(string)
		_, _ = w.Write([]byte(id + "|" + email))
	})
}

func TestAuthMiddleware(t *testing.T) {
	h := AuthMiddleware(testSecret, zerolog.Nop())(echoUser())

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "Bearer not-a-jwt", http.StatusUnauthorized, ""},
		{"valid", "Bearer " + signToken(t, "u1"), http.StatusOK, "u1|u1@example.com"},
		{"lowercase scheme", "bearer " + signToken(t, "u2"), http.StatusOK, "u2|u2@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/courses", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rr.Body.String())
			}
		})
	}
}

type fakeRoles map[string]string

func (f fakeRoles) GetRole(_ context.Context, userID string) (string, error) {
	if userID == "broken" {
		return "", errors.New("db down")
	}
	return f[userID], nil
}

func TestRequireAdmin(t *testing.T) {
	roles := fakeRoles{"admin-1": "admin", "student-1": "student"}
	h := RequireAdmin(roles, zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := map[string]int{
		"":          http.StatusUnauthorized,
		"admin-1":   http.StatusNoContent,
		"student-1": http.StatusForbidden,
		"unknown":   http.StatusForbidden,
		"broken":    http.StatusInternalServerError,
	}
	for user, want := range cases {
		req := httptest.NewRequest(http.MethodPost, "/admin/courses", nil)
		if user != "" {
			req = req.WithContext(context.WithValue(req.Context(), UserContextKey, user))
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, want, rr.Code, "user %q", user)
	}
}

func TestLoggerMiddlewareRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf).Level(zerolog.DebugLevel)
	h := LoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/courses?limit=5", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, buf.String(), `"status":502`)
	assert.Contains(t, buf.String(), "GET /courses?limit=5")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestPubSubAuth(t *testing.T) {
	const audience = "https://api.example.com/v1/dlq"
	const sa = "push@project.iam.gserviceaccount.com"

	validate := func(_ context.Context, token, aud string) (*idtoken.Payload, error) {
		if token != "good" && token != "other" {
			return nil, errors.New("bad signature")
		}
		email := sa
		if token == "other" {
			email = "intruder@example.com"
		}
		return &idtoken.Payload{Audience: aud, Claims: map[string]any{"email": email}}, nil
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	run := func(mw func(http.Handler) http.Handler, header string) int {
		req := httptest.NewRequest(http.MethodPost, "/dlq", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rr := httptest.NewRecorder()
		mw(ok).ServeHTTP(rr, req)
		return rr.Code
	}

	mw := pubSubAuth(validate, false, audience, sa, zerolog.Nop())
	assert.Equal(t, http.StatusUnauthorized, run(mw, ""))
	assert.Equal(t, http.StatusUnauthorized, run(mw, "Bearer bad"))
	assert.Equal(t, http.StatusForbidden, run(mw, "Bearer other"))
	assert.Equal(t, http.StatusOK, run(mw, "Bearer good"))

	assert.Equal(t, http.StatusOK, run(pubSubAuth(validate, true, "", "", zerolog.Nop()), ""))
	assert.Equal(t, http.StatusInternalServerError, run(pubSubAuth(validate, false, "", sa, zerolog.Nop()), "Bearer good"))
}
