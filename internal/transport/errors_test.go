package transport

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"unreachable", Unreachable(base), KindUnreachable},
		{"transient", Transient(base), KindTransient},
		{"permanent", Permanent(base), KindPermanent},
		{"wrapped keeps kind", fmt.Errorf("send: %w", Unreachable(base)), KindUnreachable},
		{"unclassified defaults permanent", base, KindPermanent},
		{"nil defaults permanent", nil, KindPermanent},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Fatalf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	t.Parallel()
	base := errors.New("boom")
	if !errors.Is(Transient(base), base) {
		t.Fatal("wrapped error not reachable via errors.Is")
	}
}
