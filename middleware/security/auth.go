package security

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ivanros02/los4Fantasticos/service/auth"
)

// CtxUIDKey is where the middleware stores the verified member id; handlers
// downstream read it with c.GetString(CtxUIDKey).
const CtxUIDKey = "uid"

// Middleware authenticates REST requests with the same bearer tokens the
// websocket handshake uses. Missing or invalid credential aborts with 401.
func Middleware(verifier auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if authz := strings.TrimSpace(c.GetHeader("Authorization")); authz != "" {
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[len("bearer "):])
			}
		}
		if token == "" {
			token = c.Query("token")
		}

		uid, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(CtxUIDKey, uid)
		c.Next()
	}
}
