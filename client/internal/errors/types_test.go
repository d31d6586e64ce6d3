package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKindSentinel(t *testing.T) {
	t.Parallel()
	base := stderrors.New("disk full")
	err := fmt.Errorf("login: %w", Persistence("session.login", base))

	if !IsPersistence(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
	if IsValidation(err) || IsClassification(err) {
		t.Fatalf("persistence error matched another kind: %v", err)
	}
	if !stderrors.Is(err, base) {
		t.Fatalf("underlying error lost from chain")
	}
}

func TestError_Categories(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"persistence is retryable", Persistence("op", stderrors.New("x")), false},
		{"validation is final", Validation("op", stderrors.New("x")), true},
		{"classification is final", Classification("op", stderrors.New("x")), true},
		{"plain errors are retryable", stderrors.New("x"), false},
		{"unauthorized is final", NewHTTPError(401, "", "register"), true},
		{"too many requests is retryable", NewHTTPError(429, "", "register"), false},
		{"server error is retryable", NewHTTPError(503, "", "register"), false},
		{"network error is retryable", NewNetworkError("register", stderrors.New("reset")), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			if got := IsIrrecoverable(tc.err); got != tc.want {
				t.Fatalf("IsIrrecoverable=%v want %v (%v)", got, tc.want, tc.err)
			}
		})
	}
}

func TestError_MessageIncludesStatus(t *testing.T) {
	t.Parallel()
	err := NewHTTPError(500, "oops", "register")
	if got := err.Error(); got != "transport [Recoverable] register: HTTP 500: register failed: HTTP 500" {
		t.Fatalf("unexpected message: %q", got)
	}
}
