package api

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   string `json:"details,omitempty"` // Raw error text, never sent in production
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func respondOK(c *gin.Context, code int, message string, data any) {
	c.JSON(code, Envelope{
		Success:   true,
		Message:   message,
		Timestamp: timestamp(),
		Data:      data,
	})
}

// Helper to return JSON error response and abort request
func abortWithError(c *gin.Context, code int, message string) {
	abortWithDetails(c, code, message, "")
}

func abortWithDetails(c *gin.Context, code int, message, details string) {
	c.AbortWithStatusJSON(code, Envelope{
		Success:   false,
		Error:     message,
		Timestamp: timestamp(),
		Details:   details,
	})
}
