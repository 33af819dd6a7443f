// internal/utils/validator.go
package utils

import (
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// SupportedPlatforms are the creator platforms a policy can cover.
var SupportedPlatforms = map[string]bool{
	"youtube":   true,
	"instagram": true,
	"tiktok":    true,
	"twitch":    true,
	"facebook":  true,
	"x":         true,
	"linkedin":  true,
	"snapchat":  true,
	"spotify":   true,
	"patreon":   true,
	"other":     true,
}

func init() {
	validate = validator.New()
	validate.RegisterValidation("currency", validateCurrency)
	validate.RegisterValidation("platform_name", validatePlatformName)
}

func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}

func validateCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

func validatePlatformName(fl validator.FieldLevel) bool {
	return SupportedPlatforms[strings.ToLower(fl.Field().String())]
}

// Validation tags for common fields
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

func GetValidationErrors(err error) []ValidationError {
	var validationErrors []ValidationError

	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		for _, e := range validationErrs {
			validationErrors = append(validationErrors, ValidationError{
				Field:   strings.ToLower(e.Field()),
				Tag:     e.Tag(),
				Message: getValidationMessage(e),
			})
		}
	}

	return validationErrors
}

func getValidationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "gt":
		return e.Field() + " must be greater than " + e.Param()
	case "gte":
		return e.Field() + " must be at least " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "currency":
		return "Currency must be a three-letter ISO 4217 code"
	case "platform_name":
		return "Unsupported platform"
	default:
		return e.Field() + " is invalid"
	}
}
