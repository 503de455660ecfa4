package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

var requestValidator = validator.New()

// strictPolicy strips all markup from user-supplied display strings before
// they are stored or echoed back.
var strictPolicy = bluemonday.StrictPolicy()

func sanitizeDisplayString(s string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(s))
}

func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "email":
				return fmt.Errorf("invalid email format")
			case "min":
				return fmt.Errorf("%s must be at least %s", field, first.Param())
			case "max":
				return fmt.Errorf("%s must be at most %s", field, first.Param())
			case "eqfield":
				return fmt.Errorf("%s must match %s", field, strings.ToLower(first.Param()))
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}

		return fmt.Errorf("invalid request payload")
	}

	return nil
}
