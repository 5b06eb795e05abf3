package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, method jwt.SigningMethod, claims jwt.MapClaims, key any) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	viper.Set("jwt.secret_key", testSecret)
	t.Cleanup(viper.Reset)

	var got Principal
	handler := AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = PrincipalFrom(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	valid := signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":     "u-42",
		"role":        RoleReviewer,
		"employee_id": "E-7",
		"exp":         time.Now().Add(time.Hour).Unix(),
	}, []byte(testSecret))

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + valid, http.StatusOK},
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + valid, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "u-1"}, []byte("other")), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{
			"user_id": "u-1", "exp": time.Now().Add(-time.Minute).Unix(),
		}, []byte(testSecret)), http.StatusUnauthorized},
		{"no user id", "Bearer " + signToken(t, jwt.SigningMethodHS256, jwt.MapClaims{"role": RoleAdmin}, []byte(testSecret)), http.StatusUnauthorized},
		{"none algorithm", "Bearer " + signToken(t, jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u-1"}, jwt.UnsafeAllowNoneSignatureType), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = Principal{}
			req := httptest.NewRequest(http.MethodGet, "/ledger", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/ledger", nil)
	req.Header.Set("Authorization", "Bearer "+valid)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, Principal{UserID: "u-42", Role: RoleReviewer, EmployeeID: "E-7"}, got)
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(RoleReviewer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name      string
		principal *Principal
		status    int
	}{
		{"reviewer", &Principal{UserID: "u-1", Role: RoleReviewer}, http.StatusNoContent},
		{"admin", &Principal{UserID: "u-2", Role: RoleAdmin}, http.StatusNoContent},
		{"cashier", &Principal{UserID: "u-3", Role: RoleCashier}, http.StatusForbidden},
		{"anonymous", nil, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/payments/verify/x", nil)
			if tt.principal != nil {
				req = req.WithContext(WithPrincipal(req.Context(), *tt.principal))
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestSecurityHeaders(t *testing.T) {
	rr := httptest.NewRecorder()
	SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})).
		ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
}
