package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	appbilling "github.com/cuotas/backend/internal/application/billing"
	"github.com/cuotas/backend/internal/infrastructure/auth"
	"github.com/cuotas/backend/internal/interfaces/http/dto"
)

// JWT context keys
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// JWTMiddlewareConfig holds configuration for JWT middleware
type JWTMiddlewareConfig struct {
	JWTService *auth.JWTService
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// SkipPathPrefixes are path prefixes that don't require authentication
	SkipPathPrefixes []string
}

// DefaultJWTConfig returns default JWT middleware configuration.
// The gateway webhook is unauthenticated: the gateway does not carry our
// tokens, and the notification is verified by re-fetching the payment.
func DefaultJWTConfig(jwtService *auth.JWTService) JWTMiddlewareConfig {
	return JWTMiddlewareConfig{
		JWTService: jwtService,
		SkipPaths: []string{
			"/health",
			"/ready",
		},
		SkipPathPrefixes: []string{
			"/api/v1/webhooks",
		},
	}
}

// JWTAuthMiddleware creates JWT authentication middleware
func JWTAuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return JWTAuthMiddlewareWithConfig(DefaultJWTConfig(jwtService))
}

// JWTAuthMiddlewareWithConfig creates JWT authentication middleware with custom config
func JWTAuthMiddlewareWithConfig(cfg JWTMiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}
		for _, prefix := range cfg.SkipPathPrefixes {
			if strings.HasPrefix(path, prefix) {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			abortUnauthorized(c, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			abortUnauthorized(c, "Invalid authorization header format")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		if tokenString == "" {
			abortUnauthorized(c, "Missing token")
			return
		}

		claims, err := cfg.JWTService.ValidateAccessToken(tokenString)
		if err != nil {
			abortUnauthorized(c, "Token validation failed")
			return
		}

		actorID, err := claims.GetAccountUUID()
		if err != nil {
			abortUnauthorized(c, "Invalid token subject")
			return
		}

		role := appbilling.Role(claims.Role)
		if role != appbilling.RoleAdmin && role != appbilling.RoleStudent {
			abortUnauthorized(c, "Unknown role")
			return
		}

		c.Set(JWTClaimsKey, claims)
		c.Set(ActorKey, appbilling.Actor{ID: actorID, Role: role})
		c.Next()
	}
}

// GetActor returns the authenticated actor from the gin context
func GetActor(c *gin.Context) (appbilling.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return appbilling.Actor{}, false
	}
	actor, ok := v.(appbilling.Actor)
	return actor, ok
}

// GetClaims returns the JWT claims from the gin context
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, exists := c.Get(JWTClaimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized,
		dto.NewErrorResponse(dto.ErrCodeUnauthorized, message))
}
