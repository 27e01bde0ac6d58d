package rest

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	PrincipalHeader     = "X-Principal-Id"
	InternalTokenHeader = "X-Internal-Token"
	principalKey        = "principal"
)

type Middleware struct {
	Handler gin.HandlerFunc
	Group   string
}

// NewMiddleware attaches handler to a router group; "*" applies it globally.
func NewMiddleware(group string, handler gin.HandlerFunc) Middleware {
	return Middleware{
		Group:   group,
		Handler: handler,
	}
}

// PrincipalMiddleware trusts the principal id set by the upstream gateway.
func PrincipalMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal := strings.TrimSpace(c.GetHeader(PrincipalHeader))
		if principal == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"ok":    false,
				"error": gin.H{"kind": "ValidationError", "message": "missing principal"},
			})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func Principal(c *gin.Context) string {
	return c.GetString(principalKey)
}

func InternalAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(InternalTokenHeader)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatus(http.StatusForbidden)
			return
		}
		c.Next()
	}
}
