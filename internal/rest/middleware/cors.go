package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/ledgerdesk/backoffice/internal/types"
	"github.com/samber/lo"
)

// CORSMiddleware handles CORS headers. An origin list containing "*" allows
// every origin; otherwise only listed origins are echoed back.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	allowAll := len(origins) == 0 || lo.Contains(origins, "*")
	allowHeaders := strings.Join([]string{"Content-Type", types.HeaderRequestID, types.HeaderUserID}, ", ")
	exposeHeaders := strings.Join([]string{"Content-Disposition", types.HeaderRequestID}, ", ")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && lo.Contains(origins, origin):
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Add("Vary", "Origin")
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", allowHeaders)
		c.Writer.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
		c.Writer.Header().Set("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
