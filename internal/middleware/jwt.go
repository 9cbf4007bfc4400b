package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/examtrust/examtrust-backend/internal/model"
	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/examtrust/examtrust-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyPrincipal is the Gin context key for the authenticated caller.
	ContextKeyPrincipal = "principal"
)

// RequireAuth validates the JWT from the Authorization header (or the
// ?token= query for clients that cannot send headers, e.g. WebSocket
// upgrades) and attaches the principal to the request context.
func RequireAuth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := extractPrincipal(c, authService)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, "invalid or missing authentication token")
			return
		}

		c.Set(ContextKeyPrincipal, principal)
		c.Next()
	}
}

// GetPrincipal retrieves the authenticated caller from the Gin context.
func GetPrincipal(c *gin.Context) *model.Principal {
	val, exists := c.Get(ContextKeyPrincipal)
	if !exists {
		return nil
	}
	p, ok := val.(*model.Principal)
	if !ok {
		return nil
	}
	return p
}

func extractPrincipal(c *gin.Context, authService *service.AuthService) (*model.Principal, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	// Fallback for WebSocket upgrades which cannot send headers.
	if tokenStr == "" {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, fmt.Errorf("authorization header or token query required")
	}

	return authService.ValidateToken(tokenStr)
}
