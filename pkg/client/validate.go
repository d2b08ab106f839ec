package client

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report wire names ("QueryExecutionId") instead of Go field names
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		switch name {
		case "-":
			return ""
		case "":
			return field.Name
		}
		return name
	})

	return v
}

// Validate checks the `validate` struct tags of a request before it is sent.
// Non-struct inputs have nothing to validate.
func Validate(in any) error {
	if in == nil {
		return nil
	}

	err := validate.Struct(in)
	if err == nil {
		return nil
	}

	var invalid *validator.InvalidValidationError
	if errors.As(err, &invalid) {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		return &InvalidArgumentError{
			Field: fe.Namespace()[strings.Index(fe.Namespace(), ".")+1:],
			Input: fmt.Sprintf("%T", in),
			Rule:  rule,
		}
	}

	return fmt.Errorf("validate %T: %w", in, err)
}
