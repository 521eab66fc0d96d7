package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := Validationf("name is required")
	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected validation error to match sentinel")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("validation error must not match not found")
	}
	wrapped := fmt.Errorf("store: add group: %w", err)
	if !errors.Is(wrapped, ErrValidation) {
		t.Fatal("wrapped error should still match")
	}
}

func TestPersistenceUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Persistence(cause, "commit")
	if !errors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if err.Error() != "commit: disk full" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeValidation:         http.StatusBadRequest,
		CodeNotFound:           http.StatusNotFound,
		CodeFormat:             http.StatusUnprocessableEntity,
		CodeConflict:           http.StatusConflict,
		CodePersistence:        http.StatusInternalServerError,
		CodeSchemaIncompatible: http.StatusInternalServerError,
	}
	for code, want := range cases {
		if got := code.HTTPStatus(); got != want {
			t.Errorf("%s: status = %d, want %d", code, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", SchemaIncompatible(9, 3))); got != CodeSchemaIncompatible {
		t.Errorf("CodeOf = %q", got)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf plain = %q", got)
	}
}
