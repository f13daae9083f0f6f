// Package middleware holds the gin middleware in front of the search API.
package middleware

import (
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// devUserID is injected when JWT validation is disabled, so the search
// surface can be exercised without standing up an auth provider.
const devUserID = "dev-user"

// OptionalJWTMiddleware gates the search API behind a Bearer JWT when
// ENABLE_JWT is set. The search core only needs a caller identity for
// request logging, so the middleware extracts a single userId claim and
// nothing else.
func OptionalJWTMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	enabled := os.Getenv("ENABLE_JWT") == "true" || os.Getenv("ENABLE_JWT") == "1"
	if !enabled {
		return func(c *gin.Context) {
			c.Set("userId", devUserID)
			c.Next()
		}
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		logger.Warn("ENABLE_JWT set without JWT_SECRET; rejecting all requests")
	}
	logger.Info("JWT authentication enabled")

	return func(c *gin.Context) {
		userID, errMsg := authenticate(c.GetHeader("Authorization"), secret)
		if errMsg != "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": errMsg})
			c.Abort()
			return
		}
		c.Set("userId", userID)
		c.Next()
	}
}

// authenticate validates the Authorization header and returns the caller's
// user id, or a non-empty error message.
func authenticate(authHeader, secret string) (userID, errMsg string) {
	if secret == "" {
		return "", "server is not configured for JWT authentication"
	}

	raw, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || raw == "" {
		return "", "expected Authorization: Bearer <token>"
	}

	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return "", "invalid token"
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "invalid token claims"
	}

	userID = userIDFromClaims(claims)
	if userID == "" {
		return "", "token carries no user identity"
	}
	return userID, ""
}

// userIDFromClaims tolerates the handful of claim spellings the personal
// data backends' tokens use for the subject.
func userIDFromClaims(claims jwt.MapClaims) string {
	for _, key := range []string{"userId", "user_id", "sub"} {
		if id, ok := claims[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}
