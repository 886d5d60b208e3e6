package handlers

import (
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// registerValidations adds the custom binding rules the request structs use.
func registerValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("phone", validPhone)
	}
}

// validPhone accepts digits with the usual separators and an optional leading
// plus. Intentionally loose: the number is a contact snapshot, not a dialing
// target.
func validPhone(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len(s) < 5 || len(s) > 20 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '+' && i == 0:
		case r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return true
}
