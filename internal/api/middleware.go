package api

import (
	"alcyxob/fitness-share/internal/domain" // For domain.Role
	"alcyxob/fitness-share/internal/service"
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Constants for context keys
const (
	ContextOwnerRefKey  = "ownerRef"
	ContextUserRoleKey  = "userRole"
	ContextRequestIDKey = "requestID"

	RequestIDHeader = "X-Request-ID"
)

// AuthMiddleware creates a Gin middleware for JWT authentication.
func AuthMiddleware(tokens service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWithError(c, http.StatusUnauthorized, "Authorization header is missing")
			return
		}
		if !authenticate(c, tokens, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuthMiddleware lets anonymous requests through, but a request that
// does send a bearer token must send a valid one.
func OptionalAuthMiddleware(tokens service.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}
		if !authenticate(c, tokens, authHeader) {
			return
		}
		c.Next()
	}
}

// authenticate validates the bearer token and stores its claims in the context.
// On failure it aborts the request and returns false.
func authenticate(c *gin.Context, tokens service.TokenService, authHeader string) bool {
	// Expecting "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		abortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer {token}")
		return false
	}

	claims, err := tokens.Parse(parts[1])
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			abortWithError(c, http.StatusUnauthorized, "Token has expired")
		} else {
			abortWithError(c, http.StatusUnauthorized, fmt.Sprintf("Invalid token: %v", err))
		}
		return false
	}

	c.Set(ContextOwnerRefKey, claims.OwnerRef)
	c.Set(ContextUserRoleKey, claims.Role)
	return true
}

// RoleMiddleware creates middleware to check if user has the required role(s).
// Must run AFTER AuthMiddleware.
func RoleMiddleware(allowedRoles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, err := getUserRoleFromContext(c)
		if err != nil {
			// This should not happen if AuthMiddleware ran correctly
			abortWithError(c, http.StatusInternalServerError, err.Error())
			return
		}

		for _, allowedRole := range allowedRoles {
			if userRole == allowedRole {
				c.Next()
				return
			}
		}
		abortWithError(c, http.StatusForbidden, fmt.Sprintf("Access denied: Role '%s' does not have permission", userRole))
	}
}

// RequestIDMiddleware tags every request with an ID, reusing the caller's X-Request-ID when present.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header(RequestIDHeader, requestID)
		c.Next()
	}
}

// LoggerMiddleware writes one access log line per request.
func LoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("clientIp", c.ClientIP()),
			zap.String("requestId", c.GetString(ContextRequestIDKey)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Info("request", fields...)
		}
	}
}

// RecoveryMiddleware turns panics into a 500 envelope and logs the stack.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("requestId", c.GetString(ContextRequestIDKey)),
					zap.ByteString("stack", debug.Stack()),
				)
				abortWithError(c, http.StatusInternalServerError, "Internal server error")
			}
		}()
		c.Next()
	}
}

// TimeoutMiddleware puts a deadline on the request context. Storage calls made
// with c.Request.Context() give up once it passes.
func TimeoutMiddleware(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if timeout <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// Helper function to get the owner reference from context (used by handlers)
func getOwnerRefFromContext(c *gin.Context) (string, error) {
	raw, exists := c.Get(ContextOwnerRefKey)
	if !exists {
		return "", errors.New("owner reference not found in context")
	}
	ownerRef, ok := raw.(string)
	if !ok || ownerRef == "" {
		return "", errors.New("invalid owner reference in context")
	}
	return ownerRef, nil
}

// Helper function to get User Role from context
func getUserRoleFromContext(c *gin.Context) (domain.Role, error) {
	roleRaw, exists := c.Get(ContextUserRoleKey)
	if !exists {
		return "", errors.New("user role not found in context")
	}
	role, ok := roleRaw.(domain.Role)
	if !ok {
		return "", errors.New("invalid user role type in context")
	}
	return role, nil
}
