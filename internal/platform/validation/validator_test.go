package validation

import (
	"strings"
	"testing"
)

type sample struct {
	Name  string  `json:"patient_name" validate:"required"`
	Phone string  `json:"phone" validate:"phone10"`
	Date  string  `json:"date" validate:"isodate"`
	Time  string  `json:"time" validate:"hhmm"`
	Email *string `json:"email,omitempty" validate:"omitempty,email"`
	Age   *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=130"`
}

func TestValidate_OK(t *testing.T) {
	s := sample{Name: "Asha", Phone: "9876543210", Date: "2026-10-21", Time: "10:15"}
	if err := New().Validate(&s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Messages(t *testing.T) {
	bad := "not-an-email"
	age := 200
	s := sample{Phone: "98765", Date: "21-10-2026", Time: "10.15", Email: &bad, Age: &age}
	err := New().Validate(&s)
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	for _, want := range []string{
		"patient_name is required",
		"phone must be exactly 10 digits",
		"date must be a YYYY-MM-DD date",
		"time must be an HH:MM time",
		"email must be a valid e-mail address",
		"age fails lte=130",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("expected %q in %q", want, msg)
		}
	}
}

func TestValidPhone(t *testing.T) {
	tests := map[string]bool{
		"9876543210":  true,
		"0000000000":  true,
		"987654321":   false,
		"98765432100": false,
		"98765 43210": false,
		"+919876543":  false,
		"":            false,
	}
	for in, want := range tests {
		if got := ValidPhone(in); got != want {
			t.Errorf("ValidPhone(%q) = %v, want %v", in, got, want)
		}
	}
}
