package middlewares

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	defaultCSP = "default-src 'none'; frame-ancestors 'none'"
	// Docs page needs CDN assets + inline bootstrap script/style.
	docsCSP = "default-src 'self'; base-uri 'none'; frame-ancestors 'none'; object-src 'none'; connect-src 'self'; img-src 'self' data: https:; font-src 'self' https://unpkg.com data:; style-src 'self' 'unsafe-inline' https://unpkg.com; script-src 'self' 'unsafe-inline' https://unpkg.com"
)

func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		switch {
		case strings.HasPrefix(path, "/docs"):
			c.Header("Content-Security-Policy", docsCSP)
		case strings.HasPrefix(path, "/account/"):
			// responses can carry bearer tokens
			c.Header("Cache-Control", "no-store")
			c.Header("Content-Security-Policy", defaultCSP)
		default:
			c.Header("Content-Security-Policy", defaultCSP)
		}
		c.Next()
	}
}
