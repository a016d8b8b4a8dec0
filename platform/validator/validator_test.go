package validator

import (
	"errors"
	"testing"

	"github.com/go-playground/validator/v10"
)

type sample struct {
	CompanyID string `validate:"required,uuid"`
	Role      string `validate:"omitempty,oneof=a b"`
}

func TestFieldErrors(t *testing.T) {
	v := New()
	err := v.Struct(sample{CompanyID: "x", Role: "c"})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	fields := FieldErrors(err)
	if fields["companyID"] != "uuid" {
		t.Fatalf("expected companyID uuid failure, got %v", fields)
	}
	if fields["role"] != "oneof" {
		t.Fatalf("expected role oneof failure, got %v", fields)
	}
}

func TestFieldErrorsIgnoresOtherErrors(t *testing.T) {
	if FieldErrors(errors.New("x")) != nil {
		t.Fatalf("expected nil for non-validation error")
	}
}

func TestRegisterValidation(t *testing.T) {
	v := New()
	if err := v.RegisterValidation("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := v.Var(3, "even"); err == nil {
		t.Fatalf("expected 3 to fail even")
	}
	if err := v.Var(4, "even"); err != nil {
		t.Fatalf("expected 4 to pass: %v", err)
	}
}
