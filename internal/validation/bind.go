package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BindJSON binds the JSON body into out.
// If the body cannot be decoded, it writes a 400 response and returns an error for the handler to short-circuit.
// Field validation happens in the service layer so every caller gets the same rules.
func BindJSON(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}
	return nil
}
