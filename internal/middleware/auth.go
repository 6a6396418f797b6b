package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"techblog/pkg/errors"
	"techblog/pkg/logger"
)

// ContextKey represents keys used in request context
type ContextKey string

const (
	// AdminContextKey is the key for the verified admin claims in context
	AdminContextKey ContextKey = "admin"
	// RequestIDContextKey is the key for request ID in context
	RequestIDContextKey ContextKey = "request_id"
)

// RequestIDHeader carries the request ID in both directions
const RequestIDHeader = "X-Request-ID"

// AdminRole is the role claim required for operational endpoints
const AdminRole = "admin"

// AdminClaims are the claims of an operator token
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth creates a middleware that accepts only HS256 bearer tokens signed
// with secret and carrying role=admin. An empty secret rejects every request.
func AdminAuth(secret string, logger *logger.Logger) func(http.Handler) http.Handler {
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				writeErrorResponse(w, r, errors.NewAuthorizationError("Admin access is not configured"), logger)
				return
			}

			// Extract token from Authorization header
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Authorization header is required"), logger)
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid authorization header format"), logger)
				return
			}

			token := strings.TrimPrefix(authHeader, "Bearer ")
			if token == "" {
				writeErrorResponse(w, r, errors.NewAuthenticationError("Token is required"), logger)
				return
			}

			claims := &AdminClaims{}
			if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
				return key, nil
			}); err != nil {
				logger.WithError(err).Warn("Admin token validation failed")
				writeErrorResponse(w, r, errors.NewAuthenticationError("Invalid or expired token"), logger)
				return
			}

			if claims.Role != AdminRole {
				writeErrorResponse(w, r, errors.NewAuthorizationError("Admin role required"), logger)
				return
			}

			ctx := context.WithValue(r.Context(), AdminContextKey, claims)
			logger.WithField("subject", claims.Subject).Debug("Admin authenticated successfully")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestID creates a middleware that adds a unique request ID to each request.
// A well-formed incoming X-Request-ID is kept so IDs follow a request across proxies.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if _, err := uuid.Parse(requestID); err != nil {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)
			w.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID returns the request ID stored by RequestID, or ""
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDContextKey).(string); ok {
		return id
	}
	return ""
}

// GetAdminClaims returns the claims stored by AdminAuth
func GetAdminClaims(ctx context.Context) (*AdminClaims, error) {
	claims, ok := ctx.Value(AdminContextKey).(*AdminClaims)
	if !ok {
		return nil, fmt.Errorf("no admin claims in context")
	}
	return claims, nil
}

// writeErrorResponse writes an error response to the client
func writeErrorResponse(w http.ResponseWriter, r *http.Request, appErr *errors.AppError, logger *logger.Logger) {
	logger.WithError(appErr).WithField("path", r.URL.Path).Info("Request rejected")
	errors.Write(w, appErr, GetRequestID(r.Context()))
}
