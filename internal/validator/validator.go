package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	govalidator "github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
)

// trans is the singleton English translator for validation errors.
var trans ut.Translator

// Setup registers the validator with English translations on Gin's binding engine.
// Call once during application startup.
func Setup() {
	if v, ok := binding.Validator.Engine().(*govalidator.Validate); ok {
		// Use JSON tag name for field names in error messages.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		// Register English translations.
		enLocale := en.New()
		uni := ut.New(enLocale, enLocale)
		trans, _ = uni.GetTranslator("en")
		en_translations.RegisterDefaultTranslations(v, trans)
	}
}

// Translate takes a binding/validation error and flattens it into a single
// caller-facing message ("field: problem; field: problem").
func Translate(err error) string {
	var ve govalidator.ValidationErrors
	if errors.As(err, &ve) {
		parts := make([]string, 0, len(ve))
		for _, fe := range ve {
			parts = append(parts, fe.Field()+": "+fe.Translate(trans))
		}
		return strings.Join(parts, "; ")
	}

	// Not a validation error (e.g., JSON syntax error).
	return "invalid request payload"
}

// Bind binds and validates the request body into dst.
// Returns "" on success or a translated message on failure.
func Bind(c *gin.Context, dst interface{}) string {
	if err := c.ShouldBindJSON(dst); err != nil {
		return Translate(err)
	}
	return ""
}
