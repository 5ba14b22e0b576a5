package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestE_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "message only",
			err:  New(UnknownMethod, "Unknown method: `explode`"),
			want: "Unknown method: `explode`",
		},
		{
			name: "wrapped cause",
			err:  Wrap(EngineFailed, "engine connect failed", stderrors.New("connection refused")),
			want: "engine connect failed: connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	cause := stderrors.New("boom")
	wrapped := fmt.Errorf("handler: %w", Wrap(AdapterFailed, "adapter setup failed", cause))

	if got := KindOf(wrapped); got != AdapterFailed {
		t.Errorf("KindOf() = %q, want %q", got, AdapterFailed)
	}
	if !stderrors.Is(wrapped, cause) {
		t.Error("errors.Is did not find the wrapped cause")
	}
	if got := KindOf(cause); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}
