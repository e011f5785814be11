package response

import (
	"github.com/gin-gonic/gin"
)

// Detail is the error body shape returned on every non-2xx response.
type Detail struct {
	Detail string `json:"detail"`
}

// Error writes the uniform error body.
func Error(c *gin.Context, status int, detail string) {
	c.JSON(status, Detail{Detail: detail})
}

// JSON writes a success payload as-is.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}
