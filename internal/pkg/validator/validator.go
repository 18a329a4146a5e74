package validator

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

// PackIDs is the set accepted by the pack_id tag. Kept in sync with the
// payment catalog by cmd/api at startup.
var PackIDs = map[string]struct{}{
	"starter":    {},
	"pro":        {},
	"enterprise": {},
}

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerCustomValidations()
}

func registerCustomValidations() {
	validate.RegisterValidation("user_role", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "user", "admin":
			return true
		}
		return false
	})

	validate.RegisterValidation("credit_direction", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "add", "deduct":
			return true
		}
		return false
	})

	validate.RegisterValidation("pack_id", func(fl validator.FieldLevel) bool {
		_, ok := PackIDs[fl.Field().String()]
		return ok
	})

	validate.RegisterValidation("provider", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "paypal", "paymob":
			return true
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required", "required_without":
			out[field] = "This field is required"
		case "min":
			out[field] = "Value is too short (min: " + fe.Param() + ")"
		case "max":
			out[field] = "Value is too long (max: " + fe.Param() + ")"
		case "gt", "gte":
			out[field] = "Value must be at least " + fe.Param()
		case "lte":
			out[field] = "Value must be at most " + fe.Param()
		case "user_role":
			out[field] = "Invalid role. Must be: user or admin"
		case "credit_direction":
			out[field] = "Invalid direction. Must be: add or deduct"
		case "pack_id":
			out[field] = "Unknown credit pack"
		case "provider":
			out[field] = "Invalid provider. Must be: paypal or paymob"
		default:
			out[field] = "Invalid value"
		}
	}

	return out
}

