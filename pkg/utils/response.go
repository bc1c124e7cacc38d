package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the envelope of every JSON response.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     interface{} `json:"error,omitempty"`
	Fields    interface{} `json:"fields,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// ErrorResponse sends an error response. err is included only when it is
// safe to show; pass nil to hide internals.
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	response := APIResponse{
		Success: false,
		Message: message,
	}
	if err != nil {
		response.Error = err.Error()
	}
	c.JSON(statusCode, response)
}

// ValidationErrorResponse reports per-field rule violations.
func ValidationErrorResponse(c *gin.Context, fields interface{}) {
	c.JSON(http.StatusBadRequest, APIResponse{
		Success: false,
		Message: "Validation failed",
		Fields:  fields,
	})
}

// RetryableErrorResponse reports a failed write the client may submit again.
func RetryableErrorResponse(c *gin.Context, message string) {
	c.JSON(http.StatusServiceUnavailable, APIResponse{
		Success:   false,
		Message:   message,
		Retryable: true,
	})
}
