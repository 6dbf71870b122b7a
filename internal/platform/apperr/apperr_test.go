package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	err := NotFound("ward", "W-001")
	if KindOf(err) != KindNotFound {
		t.Errorf("expected %s, got %s", KindNotFound, KindOf(err))
	}

	wrapped := fmt.Errorf("admit patient: %w", err)
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("kind should survive wrapping, got %s", KindOf(wrapped))
	}

	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors should have no kind")
	}
}

func TestIs(t *testing.T) {
	err := InsufficientStock("Paracetamol", 2, 5)
	if !Is(err, KindInsufficientStock) {
		t.Error("expected insufficient stock kind")
	}
	if Is(err, KindValidation) {
		t.Error("unexpected validation kind")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("row scan failed")
	err := &Error{Kind: KindNotFound, Msg: "bill missing", Err: cause}
	if !errors.Is(err, cause) {
		t.Error("wrapped cause should be reachable via errors.Is")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("medicine", "M-1"), http.StatusNotFound},
		{Validationf("quantity must be positive"), http.StatusBadRequest},
		{NoBedAvailable("W-1"), http.StatusUnprocessableEntity},
		{WardUnavailable("W-1", "Closed"), http.StatusUnprocessableEntity},
		{InsufficientStock("Ibuprofen", 0, 1), http.StatusUnprocessableEntity},
		{InvalidStatef("allocation already discharged"), http.StatusUnprocessableEntity},
		{Conflictf("bed B-3 already occupied"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := InsufficientStock("Amoxicillin", 3, 10)
	want := "insufficient_stock: insufficient stock for Amoxicillin: available 3, requested 10"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
