package service

import (
	"errors"
	"reflect"
	"strings"

	"artisanlink/internal/apperror"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator that reports fields by their JSON names.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// checkStruct runs struct validation and converts failures into a
// validation error listing the offending fields.
func checkStruct(v *validator.Validate, op string, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperror.Validation(op, err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fieldPath(fe.Namespace()))
	}
	return apperror.Validation(op, fields...)
}

// fieldPath drops the root type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func requireIDs(op string, ids map[string]string) error {
	var missing []string
	for _, name := range []string{"bookingId", "artisanId", "customerId", "ownerId"} {
		if id, ok := ids[name]; ok && strings.TrimSpace(id) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return apperror.Validation(op, missing...)
	}
	return nil
}
