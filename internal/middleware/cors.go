package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	defaultAllowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	defaultAllowHeaders = "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID"
)

// CORS разрешает запросы с любого источника вместе с учетными данными.
// Браузер не принимает "*" при Allow-Credentials, поэтому Origin отражается обратно.
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		} else {
			c.Header("Access-Control-Allow-Origin", "*")
		}
		c.Header("Access-Control-Allow-Credentials", "true")

		methods := c.GetHeader("Access-Control-Request-Method")
		if methods == "" {
			methods = defaultAllowMethods
		}
		headers := c.GetHeader("Access-Control-Request-Headers")
		if headers == "" {
			headers = defaultAllowHeaders
		}
		c.Header("Access-Control-Allow-Methods", methods)
		c.Header("Access-Control-Allow-Headers", headers)
		c.Header("Access-Control-Expose-Headers", RequestIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
