package handlers

import (
	"testing"

	"github.com/go-playground/validator/v10"
)

func TestValidPhone(t *testing.T) {
	v := validator.New()
	if err := v.RegisterValidation("phone", validPhone); err != nil {
		t.Fatalf("RegisterValidation: %v", err)
	}

	valid := []string{"+359 88 123 4567", "0888123456", "(02) 123-456"}
	for _, s := range valid {
		if err := v.Var(s, "phone"); err != nil {
			t.Errorf("%q rejected: %v", s, err)
		}
	}

	invalid := []string{"123", "phone number", "12345678+", "+3598812345678901234567"}
	for _, s := range invalid {
		if err := v.Var(s, "phone"); err == nil {
			t.Errorf("%q accepted, want rejection", s)
		}
	}
}
