package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindMatching(t *testing.T) {
	err := Validation("resolution", "resolution is required")
	if !IsKind(err, KindValidation) {
		t.Error("expected validation kind")
	}
	if IsKind(err, KindForbidden) {
		t.Error("validation must not match forbidden")
	}
	if err.Field != "resolution" {
		t.Errorf("expected field to be carried, got %q", err.Field)
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	inner := NotFound("public body")
	wrapped := fmt.Errorf("set status: %w", inner)
	if !IsKind(wrapped, KindNotFound) {
		t.Error("kind must survive fmt.Errorf wrapping")
	}
	if KindOf(wrapped) != KindNotFound {
		t.Errorf("KindOf = %v, want KindNotFound", KindOf(wrapped))
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain errors are unclassified")
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("no rows")
	err := Wrap(cause, KindNotFound, "request lookup")
	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable via errors.Is")
	}
}

func TestErrorStrings(t *testing.T) {
	cases := []struct {
		err  *Error
		want string
	}{
		{Forbidden("not your request"), "forbidden: not your request"},
		{Validation("costs", "must be non-negative"), "validation: costs: must be non-negative"},
		{Conflict("summary requires resolved status"), "conflict: summary requires resolved status"},
		{RateLimited("request limit of 2 requests in 1 minute"), "rate_limited: request limit of 2 requests in 1 minute"},
	}
	for _, c := range cases {
		if c.err.Error() != c.want {
			t.Errorf("Error() = %q, want %q", c.err.Error(), c.want)
		}
	}
}
