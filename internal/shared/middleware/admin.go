package middleware

import (
	"github.com/gin-gonic/gin"

	"familytree-backend/internal/shared/response"
)

// AdminMiddleware checks if user has admin or super_admin role
func AdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Get role from context (set by AuthMiddleware)
		role := c.GetString(ContextRole)
		if role != "admin" && role != "super_admin" {
			response.Forbidden(c, "Access denied: admin role required")
			return
		}
		c.Next()
	}
}
