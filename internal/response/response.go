package response

import (
	"net/http"

	"github.com/examtrust/examtrust-backend/internal/apperr"
	"github.com/gin-gonic/gin"
)

// Response is the standardized API envelope. Every endpoint answers with
// {ok, data?} on success and {ok, message} on failure.
type Response struct {
	OK      bool        `json:"ok"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{OK: true, Data: data})
}

// Fail sends an error response with a caller-facing message.
func Fail(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, Response{OK: false, Message: message})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, statusCode int, message string) {
	c.AbortWithStatusJSON(statusCode, Response{OK: false, Message: message})
}

// FromError maps a classified error to its HTTP status and envelope.
// Unclassified errors become a generic 500 so internals never leak.
func FromError(c *gin.Context, err error) {
	Fail(c, StatusOf(apperr.KindOf(err)), apperr.MessageOf(err))
}

// StatusOf maps an error Kind to its HTTP status code.
func StatusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindGone:
		return http.StatusGone
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
