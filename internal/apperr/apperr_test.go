package apperr

import (
	"errors"
	"fmt"
	"testing"

	"secretsanta/server/internal/encryption"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 200},
		{fmt.Errorf("text: %w", ErrInvalidInput), 400},
		{fmt.Errorf("room r1: %w", ErrForbidden), 403},
		{ErrNotFound, 404},
		{ErrNameConflict, 409},
		{ErrInvalidState, 410},
		{fmt.Errorf("message m1: %w", encryption.ErrIntegrity), 422},
		{encryption.ErrDecryption, 422},
		{errors.New("boom"), 500},
	}
	for _, tc := range cases {
		if got := Status(tc.err); got != tc.want {
			t.Errorf("Status(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestMessageHidesInternalErrors(t *testing.T) {
	if got := Message(errors.New("pq: password authentication failed")); got != "Internal server error" {
		t.Fatalf("Message leaked internal error: %q", got)
	}
	err := fmt.Errorf("%w: text is required", ErrInvalidInput)
	if got := Message(err); got != err.Error() {
		t.Fatalf("Message = %q, want %q", got, err.Error())
	}
}
