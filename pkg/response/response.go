package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes shared by middleware and handlers
const (
	CodeBadRequest   = "BAD_REQUEST"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeInternal     = "INTERNAL_ERROR"
)

// ErrorBody is the JSON body of every error response
type ErrorBody struct {
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// OK writes data with 200
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with 201
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error writes an error body. The error field carries the status text.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, NewError(status, code, message))
}

// Abort writes an error body and stops the handler chain
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, NewError(status, code, message))
}

// NewError builds an ErrorBody
func NewError(status int, code, message string) ErrorBody {
	return ErrorBody{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	}
}

// BadRequest writes a 400
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, CodeBadRequest, message)
}

// NotFound writes a 404
func NotFound(c *gin.Context, code, message string) {
	Error(c, http.StatusNotFound, code, message)
}

// Unauthorized aborts with 401
func Unauthorized(c *gin.Context, message string) {
	Abort(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

// InternalError writes a 500 without leaking err to the client
func InternalError(c *gin.Context, err error) {
	if err != nil {
		_ = c.Error(err)
	}
	Error(c, http.StatusInternalServerError, CodeInternal, "An internal error occurred")
}
