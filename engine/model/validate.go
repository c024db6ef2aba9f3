package model

import (
	"context"
	"reflect"
	"sync"

	"github.com/compozy/modelstore/engine/core"
	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validatable is implemented by records with rules beyond struct tags.
type Validatable interface {
	Validate(ctx context.Context) error
}

// validateRecord checks struct tags and then the record's own Validate.
func validateRecord(ctx context.Context, record any) error {
	rv := reflect.ValueOf(record)
	for rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		if err := structValidator().Struct(rv.Interface()); err != nil {
			return core.NewValidationError("create", err)
		}
	}
	if v, ok := record.(Validatable); ok {
		if err := v.Validate(ctx); err != nil {
			return core.NewValidationError("create", err)
		}
	}
	return nil
}
