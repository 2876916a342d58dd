package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dajobrague/au-call-system-sub004/internal/http/handlers"
	"github.com/dajobrague/au-call-system-sub004/internal/shifts"
)

type emptyShiftStore struct{}

func (emptyShiftStore) ListUnfilled(context.Context, uuid.UUID) ([]shifts.Occurrence, error) {
	return nil, nil
}

func newTestRouter(t *testing.T, secret string) http.Handler {
	t.Helper()
	return New(&Config{
		Admin:           handlers.NewAdminHandler(emptyShiftStore{}, nil, nil, nil),
		AdminAuthSecret: secret,
	})
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "admin-user",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealth(t *testing.T) {
	r := newTestRouter(t, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouterAdminRequiresToken(t *testing.T) {
	r := newTestRouter(t, "secret")
	path := "/admin/providers/" + uuid.NewString() + "/shifts/unfilled"

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "secret"))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterAdminDisabledWithoutSecret(t *testing.T) {
	r := newTestRouter(t, "")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/providers/"+uuid.NewString()+"/shifts/unfilled", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
