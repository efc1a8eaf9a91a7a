// Package response defines the standardized API envelope shared by every
// endpoint.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Response represents a standardized API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error represents an error response
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeUpstream      = "UPSTREAM_UNAVAILABLE"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// Handle processes the error and returns the appropriate response
func Handle(c *gin.Context, data interface{}, err error) {
	if err == nil {
		Success(c, data)
		return
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		NotFound(c, "Resource not found")
		return
	}
	InternalError(c, "An unexpected error occurred")
}

// Success sends a successful response
func Success(c *gin.Context, data interface{}) {
	status := http.StatusOK
	if c.Request.Method == http.MethodPost {
		status = http.StatusCreated
	}

	c.JSON(status, Response{
		Success: true,
		Data:    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{
		Success: false,
		Error: &Error{
			Code:    code,
			Message: message,
		},
	})
}

// NotFound sends a 404 response
func NotFound(c *gin.Context, message string) {
	fail(c, http.StatusNotFound, ErrCodeNotFound, message)
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// BadGateway sends a 502 response, used when an upstream quote provider
// fails
func BadGateway(c *gin.Context, message string) {
	fail(c, http.StatusBadGateway, ErrCodeUpstream, message)
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	fail(c, http.StatusInternalServerError, ErrCodeInternalError, message)
}
