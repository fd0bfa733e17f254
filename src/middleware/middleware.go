package middleware

import (
	"net/http"

	"github.com/mrsaikumar-7/travvy/src/schemas"

	"github.com/gin-gonic/gin"
)

// UserIDHeader carries the authenticated user's identity, set by the
// gateway in front of this service. Credential verification happens there,
// not here.
const UserIDHeader = "X-User-ID"

// RequireUser rejects requests that carry no user identity.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetHeader(UserIDHeader)
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				schemas.NewErrorResponse(http.StatusUnauthorized, "Unauthorized",
					"X-User-ID header missing", c.FullPath()))
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// UserID returns the identity attached by RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString("userID")
}
