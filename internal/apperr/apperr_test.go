package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", Validation("amount must be positive"), KindValidation},
		{"forbidden", Forbidden("not an admin"), KindAuthorization},
		{"conflict wrapped", fmt.Errorf("failed to commit: %w", Conflict("version mismatch")), KindConflict},
		{"transient", Transient(errors.New("dial tcp"), "storage unavailable"), KindTransient},
		{"not found", NotFound("group %s not found", "g1"), KindNotFound},
		{"plain error", errors.New("boom"), KindInternal},
		{"nil", nil, KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorsIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("leave group: %w", Forbidden("owner must transfer ownership first"))
	if !errors.Is(err, ErrForbidden) {
		t.Error("expected errors.Is(err, ErrForbidden)")
	}
	if errors.Is(err, ErrConflict) {
		t.Error("forbidden error must not match ErrConflict")
	}
}

func TestTransientUnwraps(t *testing.T) {
	cause := errors.New("connection reset")
	err := Transient(cause, "publish failed")
	if !errors.Is(err, cause) {
		t.Error("expected transient error to unwrap to its cause")
	}
	if err.Error() != "publish failed: connection reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
}
