package service

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		want error
		kind Kind
	}{
		{notFound("conversation not found"), ErrNotFound, KindNotFound},
		{forbidden("nope"), ErrForbidden, KindForbidden},
		{policy("too old"), ErrPolicy, KindPolicy},
		{invalid("bad"), ErrInvalid, KindInvalid},
		{fmt.Errorf("outer: %w", policy("wrapped")), ErrPolicy, KindPolicy},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Errorf("%v is not %v", tt.err, tt.want)
		}
		if got := KindOf(tt.err); got != tt.kind {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.kind)
		}
	}

	if errors.Is(notFound("x"), ErrForbidden) {
		t.Error("kinds must not cross-match")
	}
	if KindOf(errors.New("boom")) != "" {
		t.Error("plain errors have no kind")
	}
	if wrap(nil, "ctx") != nil {
		t.Error("wrap(nil) must be nil")
	}
}
