package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/c360/semflow/errors"
)

var structValidator = newStructValidator()

// newStructValidator reports fields by their json names and adds the
// bucket and version tags
func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("bucket", func(fl validator.FieldLevel) bool {
		return isValidBucketName(fl.Field().String())
	})
	_ = v.RegisterValidation("version", func(fl validator.FieldLevel) bool {
		_, _, _, err := parseSemVer(fl.Field().String())
		return err == nil
	})
	return v
}

// structError turns the first failed field rule into an ErrInvalidConfig
func structError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return invalid("%v", err)
	}
	fe := fieldErrs[0]
	_, field, _ := strings.Cut(fe.Namespace(), ".")
	return invalid("%s: %s", field, describe(fe))
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%q is not one of %s", fe.Value(), strings.ReplaceAll(fe.Param(), " ", ", "))
	case "gt":
		return fmt.Sprintf("must be greater than %s, got %v", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
	case "bucket":
		return fmt.Sprintf("%q is not a valid bucket name", fe.Value())
	case "version":
		return fmt.Sprintf("%q is not major.minor.patch", fe.Value())
	case "required":
		return "must not be empty"
	default:
		return fmt.Sprintf("failed %s check", fe.Tag())
	}
}
