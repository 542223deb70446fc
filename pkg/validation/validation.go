// Package validation wraps go-playground/validator with JSON field names and
// readable messages.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator validates request structs.
type Validator struct {
	v *validator.Validate
}

func New() *Validator {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &Validator{v: v}
}

// Struct validates s and returns an error whose message lists every failing
// field, or nil.
func (val *Validator) Struct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return errors.New(strings.Join(Messages(verrs), "; "))
}

// Messages renders one message per failed field.
func Messages(verrs validator.ValidationErrors) []string {
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, message(fe))
	}
	return out
}

func message(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "uuid", "uuid4":
		return field + " must be a valid UUID"
	case "datetime":
		return fmt.Sprintf("%s must be a date in %s format", field, dateLayoutName(fe.Param()))
	case "email":
		return field + " must be a valid email"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return field + " is invalid"
	}
}

// fieldPath drops the root struct name from a namespace such as
// "CreateRequest.items[0].asset_id".
func fieldPath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func dateLayoutName(layout string) string {
	if layout == "2006-01-02" {
		return "YYYY-MM-DD"
	}
	return layout
}
