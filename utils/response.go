package utils

import (
	"github.com/gin-gonic/gin"
)

// Response is the envelope every successful call answers with
type Response struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

// ErrorResponse is the envelope for failed calls. Retryable is set only for
// transient failures where resending the same request is safe.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, Response{Status: status, Message: message, Data: data})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, ErrorResponse{Status: status, Message: message, Error: err.Error()})
}

// JSONRetryableError sends an error response the client may retry verbatim
func JSONRetryableError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, ErrorResponse{Status: status, Message: message, Error: err.Error(), Retryable: true})
}
