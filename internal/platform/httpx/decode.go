package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const defaultMaxBodyBytes = 16 * 1024

// ErrInvalidBody reports a request body that could not be decoded or failed validation.
var ErrInvalidBody = errors.New("httpx: invalid request body")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// DecodeJSON reads a bounded JSON body into dst and runs struct validation tags. An empty body
// is accepted when allowEmpty is true.
func DecodeJSON(r *http.Request, dst any, allowEmpty bool) error {
	if r.Body == nil {
		if allowEmpty {
			return requestValidator().Struct(dst)
		}
		return fmt.Errorf("%w: body is required", ErrInvalidBody)
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(io.LimitReader(r.Body, defaultMaxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		if !(errors.Is(err, io.EOF) && allowEmpty) {
			return fmt.Errorf("%w: %v", ErrInvalidBody, err)
		}
	}
	if err := requestValidator().Struct(dst); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidBody, describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			parts = append(parts, field+" is required")
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
