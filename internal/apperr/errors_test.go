package apperr

import (
	"errors"
	"testing"
)

func TestValidationWrapsSentinel(t *testing.T) {
	inner := errors.New("title: cannot be blank")
	err := Validation(inner)
	if !errors.Is(err, ErrValidation) {
		t.Error("expected ErrValidation in chain")
	}
	if !errors.Is(err, inner) {
		t.Error("expected inner error in chain")
	}
	if err.Error() != "validation: title: cannot be blank" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestValidationNil(t *testing.T) {
	if Validation(nil) != nil {
		t.Error("nil input should stay nil")
	}
}
