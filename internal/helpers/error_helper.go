package helpers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/farellandr/ucshop/internal/apperrors"
)

type ErrorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

func RespondWithData(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Envelope{Success: true, Data: data})
}

func RespondWithError(c *gin.Context, statusCode int, customMessage string) {
	c.JSON(statusCode, Envelope{
		Error: &ErrorBody{
			Code:    strings.ToUpper(strings.ReplaceAll(http.StatusText(statusCode), " ", "_")),
			Message: customMessage,
		},
	})
}

// RespondWithAppError maps business failures to their status code and
// hides everything else behind a generic 500.
func RespondWithAppError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		RespondWithError(c, http.StatusInternalServerError, "Something went wrong. Please try again later.")
		return
	}

	c.JSON(apperrors.HTTPStatus(appErr.Code), Envelope{
		Error: &ErrorBody{
			Code:    string(appErr.Code),
			Message: appErr.Message,
			Fields:  appErr.Fields,
		},
	})
}

// RespondWithBindingError turns gin binding failures into field-level detail.
func RespondWithBindingError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		RespondWithAppError(c, apperrors.New(apperrors.CodeValidation, "Invalid request payload."))
		return
	}

	appErr := apperrors.New(apperrors.CodeValidation, "Invalid input. Please check your fields.")
	for _, fe := range verrs {
		appErr.WithField(toSnake(fe.Field()), describeTag(fe))
	}
	RespondWithAppError(c, appErr)
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "uuid":
		return "must be a valid UUID"
	default:
		return "is invalid"
	}
}

func toSnake(name string) string {
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 && !(name[i-1] >= 'A' && name[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
