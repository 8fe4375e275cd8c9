package middleware

import (
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// SetupValidator configures gin's binding validator with the tags the
// payment endpoints rely on. Safe to call more than once.
func SetupValidator() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	// Use JSON (or form) tag names for field names in errors
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		}
		return name
	})

	// Teach the validator about decimal.Decimal so numeric tags like gt=0
	// work on amount fields.
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		if d, ok := field.Interface().(decimal.Decimal); ok {
			f, _ := d.Float64()
			return f
		}
		return nil
	}, decimal.Decimal{})

	// An Argentine DNI is 7 to 9 digits, no separators.
	_ = v.RegisterValidation("dni", func(fl validator.FieldLevel) bool {
		return isValidDNI(fl.Field().String())
	})
}

func isValidDNI(dni string) bool {
	if len(dni) < 7 || len(dni) > 9 {
		return false
	}
	for _, r := range dni {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
