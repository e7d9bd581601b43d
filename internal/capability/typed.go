// SPDX-License-Identifier: MPL-2.0

package capability

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

// ErrInvalidInput is returned by Typed capabilities when the input cannot be
// decoded into the expected type or fails validation.
var ErrInvalidInput = errors.New("invalid capability input")

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// Typed adapts a strongly typed function into a Func.
//
// The loose input (usually a map decoded from JSON or exported from a script)
// is decoded into In using the json struct tags with weak typing, so a
// JavaScript number can fill an int field. Struct inputs are then validated
// with their `validate` tags before fn runs.
func Typed[In, Out any](fn func(ctx context.Context, in In) (Out, error)) Func {
	return func(ctx context.Context, input any) (any, error) {
		in, err := DecodeInput[In](input)
		if err != nil {
			return nil, err
		}
		return fn(ctx, in)
	}
}

// DecodeInput decodes and validates a loose input value into In.
func DecodeInput[In any](input any) (In, error) {
	var in In
	if typed, ok := input.(In); ok {
		in = typed
	} else if input != nil {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			Result:           &in,
		})
		if err != nil {
			return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		if err := dec.Decode(input); err != nil {
			return in, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	if reflect.Indirect(reflect.ValueOf(&in)).Kind() == reflect.Struct {
		if err := inputValidator().Struct(in); err != nil {
			return in, fmt.Errorf("%w: %s", ErrInvalidInput, describeValidation(err))
		}
	}
	return in, nil
}

func inputValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// describeValidation turns validator errors into "field: rule" pairs.
func describeValidation(err error) string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fe.Field()+" failed "+rule)
	}
	return strings.Join(parts, "; ")
}
