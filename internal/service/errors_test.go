package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Code
	}{
		{
			name: "coded error",
			err:  Validation("bad cluster count %d", 50),
			want: CodeValidation,
		},
		{
			name: "wrapped coded error",
			err:  fmt.Errorf("outer: %w", Conflict("active job exists")),
			want: CodeConflict,
		},
		{
			name: "uncoded error",
			err:  errors.New("something broke"),
			want: CodeInternal,
		},
		{
			name: "wrap preserves code",
			err:  Wrap(errors.New("dial tcp: refused"), CodeProviderUnavailable, "embedding backend unreachable"),
			want: CodeProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMessageOf_HidesInternalDetail(t *testing.T) {
	err := errors.New("sql: database is locked")
	if got := MessageOf(err); got != "internal error" {
		t.Errorf("MessageOf() = %q, want generic message", got)
	}

	coded := NotFound("job %s not found", "abc")
	if got := MessageOf(coded); got != "job abc not found" {
		t.Errorf("MessageOf() = %q", got)
	}
}

func TestWrap_NilCause(t *testing.T) {
	if err := Wrap(nil, CodeInternal, "ignored"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(cause, CodeInternal, "wrapper")
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}
