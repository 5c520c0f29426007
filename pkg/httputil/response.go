package httputil

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/scheduler-api/pkg/errors"
)

// Response wraps all API responses
type Response struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Warning string       `json:"warning,omitempty"`
	Data    any          `json:"data,omitempty"`
	Errors  []FieldError `json:"errors,omitempty"`
}

// FieldError describes one failed binding rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var messages = map[string]string{
	"required":  "field is required",
	"email":     "invalid email format",
	"min":       "value is too small",
	"max":       "value is too large",
	"phone":     "invalid phone number",
	"clock":     "expected HH:MM",
	"civildate": "expected YYYY-MM-DD",
	"month":     "expected YYYY-MM",
}

func NewSuccessResponse(data any) *Response {
	return &Response{Status: "success", Data: data}
}

func NewErrorResponse(message string) *Response {
	return &Response{Status: "error", Message: message}
}

// RespondWithSuccess sends data with the given status.
func RespondWithSuccess(c *gin.Context, status int, data any) {
	c.JSON(status, NewSuccessResponse(data))
}

// RespondWithWarning sends a successful response whose side effects only
// partially completed.
func RespondWithWarning(c *gin.Context, status int, data any, warning string) {
	resp := NewSuccessResponse(data)
	resp.Warning = warning
	c.JSON(status, resp)
}

// RespondWithError maps err onto a status code. Internal causes are logged
// and never rendered.
func RespondWithError(c *gin.Context, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.Internal(err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		log.Error().
			Err(err).
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Msg("request failed")
	}

	c.AbortWithStatusJSON(status, NewErrorResponse(appErr.Message))
}

// RespondWithBindError renders a request decoding or validation failure.
func RespondWithBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.AbortWithStatusJSON(http.StatusBadRequest, NewErrorResponse("invalid request body"))
		return
	}

	resp := NewErrorResponse("validation failed")
	for _, fe := range verrs {
		msg, ok := messages[fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		resp.Errors = append(resp.Errors, FieldError{Field: fe.Field(), Message: msg})
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, resp)
}

// JSONTagName reports struct fields by their json name in validation errors.
func JSONTagName(fld reflect.StructField) string {
	name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	if name == "-" || name == "" {
		return fld.Name
	}
	return name
}
