package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tesobe-kodeaffe/clickcounter-backend/internal/auth"
)

// Realm is announced in WWW-Authenticate challenges.
const Realm = "clickcounter"

// BasicAuth rejects requests whose Basic credentials do not carry the shared
// secret as password. The username is ignored.
func BasicAuth(gate *auth.Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, password, ok := c.Request.BasicAuth()
		if !ok || !gate.Allow(password) {
			c.Header("WWW-Authenticate", `Basic realm="`+Realm+`"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
