package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func MaxBodyBytes(max int64) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if max <= 0 {
			ctx.Next()
			return
		}

		if ctx.Request.ContentLength > max {
			ctx.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": gin.H{
					"code":    "payload_too_large",
					"message": "Request body is too large",
				},
			})
			return
		}

		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, max)

		ctx.Next()
	}
}
