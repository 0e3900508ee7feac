package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// FieldErrors turns binding validation failures into a json-field keyed message map.
// It returns nil when err does not carry validation errors.
func FieldErrors(err error, req any) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	requestType := reflect.TypeOf(req)
	for requestType != nil && requestType.Kind() == reflect.Pointer {
		requestType = requestType.Elem()
	}

	out := make(map[string]string, len(validationErrors))
	for _, fieldError := range validationErrors {
		fieldName := fieldError.Field()
		if requestType != nil && requestType.Kind() == reflect.Struct {
			if field, ok := requestType.FieldByName(fieldError.StructField()); ok {
				if jsonTag := field.Tag.Get("json"); jsonTag != "" && jsonTag != "-" {
					fieldName = strings.Split(jsonTag, ",")[0]
				}
			}
		}
		out[fieldName] = message(fieldError)
	}
	return out
}

func message(fieldError validator.FieldError) string {
	switch fieldError.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "max":
		return "must be at most " + fieldError.Param() + " characters"
	case "oneof":
		return "must be one of: " + fieldError.Param()
	default:
		return "is invalid"
	}
}
