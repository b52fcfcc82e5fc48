package brokererr

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf_DirectError(t *testing.T) {
	err := Upstream(503, "service unavailable")
	if CodeOf(err) != UpstreamError {
		t.Errorf("expected UpstreamError, got %s", CodeOf(err))
	}
	if err.Status != 503 {
		t.Errorf("expected status 503, got %d", err.Status)
	}
}

func TestCodeOf_WrappedError(t *testing.T) {
	base := New(AccessDenied, "server restricted")
	wrapped := fmt.Errorf("calling tool: %w", base)
	if CodeOf(wrapped) != AccessDenied {
		t.Errorf("expected AccessDenied through fmt.Errorf wrapping, got %s", CodeOf(wrapped))
	}
}

func TestCodeOf_UnclassifiedDefaultsToInternal(t *testing.T) {
	if CodeOf(errors.New("boom")) != Internal {
		t.Error("expected Internal for an unclassified error")
	}
}

func TestWrap_PreservesUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	wrapped := Wrap(TransportClosed, "mcp transport lost", cause)
	if !errors.Is(wrapped, cause) {
		t.Error("expected errors.Is to find the wrapped cause")
	}
}
