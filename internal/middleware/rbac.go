package middleware

import (
	"net/http"

	"github.com/examtrust/examtrust-backend/internal/response"
	"github.com/gin-gonic/gin"
)

// RequireStaff restricts a route to teacher/admin principals. Finer
// checks (ownership, org scoping) live in the service authorization
// predicate; this gate only keeps learners off staff surfaces.
func RequireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		p := GetPrincipal(c)
		if p == nil {
			response.AbortFail(c, http.StatusUnauthorized, "authentication required")
			return
		}

		if !p.IsStaff() {
			response.AbortFail(c, http.StatusForbidden, "teacher or admin role required")
			return
		}

		c.Next()
	}
}
