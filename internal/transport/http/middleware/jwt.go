package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"vnnews-clustering/internal/pkg/jwtutil"
	"vnnews-clustering/internal/transport/http/response"
)

const (
	ContextUsernameKey = "username"
	ContextRoleKey     = "role"
)

func AuthJWT(secret, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		if authHeader == "" {
			response.Error(c, 401, response.CodeUnauthorized, "missing authorization header")
			c.Abort()
			return
		}

		const prefix = "Bearer "
		if !strings.HasPrefix(authHeader, prefix) {
			response.Error(c, 401, response.CodeUnauthorized, "invalid authorization scheme")
			c.Abort()
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, prefix))
		claims, err := jwtutil.ParseToken(secret, token)
		if err != nil {
			response.Error(c, 401, response.CodeUnauthorized, "invalid or expired token")
			c.Abort()
			return
		}
		if role != "" && claims.Role != role {
			response.Error(c, 403, response.CodeForbidden, "insufficient role")
			c.Abort()
			return
		}

		c.Set(ContextUsernameKey, claims.Username)
		c.Set(ContextRoleKey, claims.Role)
		c.Next()
	}
}
