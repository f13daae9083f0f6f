package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

func TestOptionalJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	secret := "test-secret"
	generateToken := func(claims map[string]interface{}) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(claims))
		tokenString, _ := token.SignedString([]byte(secret))
		return tokenString
	}

	tests := []struct {
		name           string
		enableJWT      string
		jwtSecret      string
		authHeader     string
		expectedStatus int
		expectedUserID string
	}{
		{
			name:           "JWT disabled - dev identity injected",
			enableJWT:      "false",
			authHeader:     "",
			expectedStatus: http.StatusOK,
			expectedUserID: "dev-user",
		},
		{
			name:           "JWT disabled via unset - dev identity injected",
			enableJWT:      "",
			authHeader:     "Bearer garbage",
			expectedStatus: http.StatusOK,
			expectedUserID: "dev-user",
		},
		{
			name:      "valid token with userId claim",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"userId": "user-123",
				"exp":    time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusOK,
			expectedUserID: "user-123",
		},
		{
			name:      "valid token with user_id claim",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"user_id": "user-underscore",
				"exp":     time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusOK,
			expectedUserID: "user-underscore",
		},
		{
			name:      "valid token with sub claim",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"sub": "user-sub",
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusOK,
			expectedUserID: "user-sub",
		},
		{
			name:           "missing Authorization header",
			enableJWT:      "true",
			jwtSecret:      secret,
			authHeader:     "",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong Authorization scheme",
			enableJWT:      "true",
			jwtSecret:      secret,
			authHeader:     "Basic dXNlcjpwYXNz",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:      "expired token",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"userId": "user-123",
				"exp":    time.Now().Add(-time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:      "tampered signature",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"userId": "user-123",
				"exp":    time.Now().Add(time.Hour).Unix(),
			}) + "tampered",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:      "token without any identity claim",
			enableJWT: "true",
			jwtSecret: secret,
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"exp": time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:      "JWT enabled without configured secret",
			enableJWT: "true",
			jwtSecret: "",
			authHeader: "Bearer " + generateToken(map[string]interface{}{
				"userId": "user-123",
				"exp":    time.Now().Add(time.Hour).Unix(),
			}),
			expectedStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Setenv("ENABLE_JWT", tt.enableJWT)
			os.Setenv("JWT_SECRET", tt.jwtSecret)
			defer os.Unsetenv("ENABLE_JWT")
			defer os.Unsetenv("JWT_SECRET")

			r := gin.New()
			r.Use(OptionalJWTMiddleware(nil))
			r.GET("/probe", func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{"userId": c.GetString("userId")})
			})

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedUserID != "" {
				assert.Contains(t, w.Body.String(), tt.expectedUserID)
			}
		})
	}
}

func TestUserIDFromClaims_PrefersExplicitUserID(t *testing.T) {
	claims := jwt.MapClaims{"sub": "fallback", "userId": "primary"}
	assert.Equal(t, "primary", userIDFromClaims(claims))
}
