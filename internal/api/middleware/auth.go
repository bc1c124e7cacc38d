package middleware

import (
	"context"
	"net/http"
	"strings"

	"garage-backend/internal/models"
	"garage-backend/internal/services"
	"garage-backend/pkg/jwt"
	"garage-backend/pkg/utils"

	"github.com/gin-gonic/gin"
)

const (
	actorKey  = "actor"
	claimsKey = "claims"
	tokenKey  = "token"

	// UserIDKey is read by the rate limiter to key authenticated clients.
	UserIDKey = "user_id"
)

// Authenticator resolves a bearer token to the calling user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (services.Actor, *jwt.Claims, error)
}

func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authorization header required", nil)
			c.Abort()
			return
		}

		actor, claims, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Invalid or expired token", nil)
			c.Abort()
			return
		}

		c.Set(actorKey, actor)
		c.Set(claimsKey, claims)
		c.Set(tokenKey, token)
		c.Set(UserIDKey, actor.UserID)
		c.Next()
	}
}

// RequireRole rejects callers whose role is not listed. It must run after
// AuthMiddleware.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			utils.ErrorResponse(c, http.StatusUnauthorized, "Authentication required", nil)
			c.Abort()
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		utils.ErrorResponse(c, http.StatusForbidden, services.ErrRoleNotAllowed.Error(), nil)
		c.Abort()
	}
}

// BearerToken accepts both "Bearer <token>" and a bare token.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}

func ActorFrom(c *gin.Context) (services.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return services.Actor{}, false
	}
	actor, ok := v.(services.Actor)
	return actor, ok
}

func ClaimsFrom(c *gin.Context) *jwt.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*jwt.Claims); ok {
			return claims
		}
	}
	return nil
}

func TokenFrom(c *gin.Context) string {
	return c.GetString(tokenKey)
}
