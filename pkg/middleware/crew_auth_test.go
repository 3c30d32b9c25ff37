package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func authRouter() (*gin.Engine, *CrewIdentity) {
	gin.SetMode(gin.TestMode)
	captured := &CrewIdentity{}

	router := gin.New()
	router.Use(CrewAuth(testSecret))
	router.GET("/protected", func(c *gin.Context) {
		if identity := GetCrewIdentity(c); identity != nil {
			*captured = *identity
		}
		c.Status(http.StatusOK)
	})

	return router, captured
}

// TestCrewAuth tests token validation and identity extraction
func TestCrewAuth(t *testing.T) {
	validBadge := "3f1a7c2e-9b44-4d8a-8f20-5c6d1e0a9b33"

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{
			name: "valid token",
			header: "Bearer " + func() string {
				gin.SetMode(gin.TestMode)
				token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
					"uid":   float64(42),
					"badge": validBadge,
					"exp":   time.Now().Add(time.Hour).Unix(),
				})
				signed, _ := token.SignedString(testSecret)
				return signed
			}(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			header:     "",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "not a bearer scheme",
			header:     "Basic dXNlcjpwYXNz",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "garbage token",
			header:     "Bearer not.a.token",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := authRouter()

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

// TestCrewAuthClaims tests claim-level validation
func TestCrewAuthClaims(t *testing.T) {
	validBadge := "3f1a7c2e-9b44-4d8a-8f20-5c6d1e0a9b33"

	tests := []struct {
		name   string
		claims jwt.MapClaims
		wantOK bool
	}{
		{
			name:   "numeric uid and UUID badge",
			claims: jwt.MapClaims{"uid": float64(42), "badge": validBadge},
			wantOK: true,
		},
		{
			name:   "string uid accepted when integer",
			claims: jwt.MapClaims{"uid": "42", "badge": validBadge},
			wantOK: true,
		},
		{
			name:   "missing uid",
			claims: jwt.MapClaims{"badge": validBadge},
			wantOK: false,
		},
		{
			name:   "non-integer uid",
			claims: jwt.MapClaims{"uid": "forty-two", "badge": validBadge},
			wantOK: false,
		},
		{
			name:   "missing badge",
			claims: jwt.MapClaims{"uid": float64(42)},
			wantOK: false,
		},
		{
			name:   "badge not a UUID",
			claims: jwt.MapClaims{"uid": float64(42), "badge": "badge-007"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, captured := authRouter()

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			req.Header.Set("Authorization", "Bearer "+signToken(t, tt.claims))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if tt.wantOK {
				assert.Equal(t, http.StatusOK, rec.Code)
				assert.Equal(t, int64(42), captured.UserID)
				assert.Equal(t, validBadge, captured.BadgeID)
			} else {
				assert.Equal(t, http.StatusUnauthorized, rec.Code)
			}
		})
	}
}

// TestCrewAuthRejectsWrongSignature tests tokens signed with another secret
func TestCrewAuthRejectsWrongSignature(t *testing.T) {
	router, _ := authRouter()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"uid":   float64(42),
		"badge": "3f1a7c2e-9b44-4d8a-8f20-5c6d1e0a9b33",
	})
	signed, err := token.SignedString([]byte("a-different-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
